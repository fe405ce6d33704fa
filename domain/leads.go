package domain

// Lead pipeline statuses.
const (
	LeadStatusNew         = "new"
	LeadStatusAppointment = "appointment"
	LeadStatusNegotiation = "negotiation"
	LeadStatusWon         = "won"
	LeadStatusDelivered   = "delivered"
	LeadStatusLost        = "lost"
	LeadStatusArchived    = StatusArchived
)

// Document kinds produced by guarded transitions.
const (
	DocumentReservation = "reservation"
	DocumentInvoice     = "invoice"
)

// LostReasons is the fixed categorical set for reason-required edges.
var LostReasons = []string{
	"Price",
	"Availability",
	"Timeline",
	"Finance Approval",
	"Customer Service",
	"No Response",
}

// LeadPipeline builds the lead board: scheduling an appointment gates entry
// into the appointment column, a reservation document gates the won column,
// the delivery invoice gates delivered, and marking a lead lost requires a
// reason.
func LeadPipeline() *Board {
	b := &Board{
		Name: "leads",
		Columns: []Column{
			{Key: LeadStatusNew, Title: "NEW LEAD"},
			{Key: LeadStatusAppointment, Title: "APPOINTMENT", Sort: SortScheduledAsc},
			{Key: LeadStatusNegotiation, Title: "NEGOTIATION"},
			{Key: LeadStatusWon, Title: "RESERVED"},
			{Key: LeadStatusDelivered, Title: "DELIVERED"},
			{Key: LeadStatusLost, Title: "LOST"},
			{Key: LeadStatusArchived, Title: "ARCHIVED"},
		},
		Reasons: LostReasons,
	}
	b.guard(LeadStatusNew, LeadStatusAppointment, Edge{Kind: EdgeCollect})
	b.guard("", LeadStatusLost, Edge{Kind: EdgeReason})
	b.guard("", LeadStatusWon, Edge{Kind: EdgeDocument, DocumentKind: DocumentReservation})
	b.guard("", LeadStatusDelivered, Edge{Kind: EdgeDocument, DocumentKind: DocumentInvoice, RevertOnCancel: true})
	b.guard("", LeadStatusArchived, Edge{Kind: EdgeArchive})
	return b
}
