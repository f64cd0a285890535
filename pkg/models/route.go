package models

// RouteKind classifies the user's intent and selects downstream processing.
type RouteKind string

const (
	RouteRAG           RouteKind = "RAG"
	RouteDirect        RouteKind = "DIRECT"
	RouteEscalate      RouteKind = "ESCALATE"
	RouteSQLStructured RouteKind = "SQL_STRUCTURED" // reserved, not implemented
	RouteAPILookup     RouteKind = "API_LOOKUP"     // reserved, not implemented
)

// IsValid checks if the route kind is one of the five known kinds.
func (k RouteKind) IsValid() bool {
	switch k {
	case RouteRAG, RouteDirect, RouteEscalate, RouteSQLStructured, RouteAPILookup:
		return true
	default:
		return false
	}
}

// Implemented reports whether the core can serve the route.
func (k RouteKind) Implemented() bool {
	return k == RouteRAG || k == RouteDirect || k == RouteEscalate
}

// RouteDecision is the router's classification of a query.
type RouteDecision struct {
	Kind             RouteKind
	Confidence       float64
	Scores           map[RouteKind]float64
	MatchedUtterance string
	Defaulted        bool
}
