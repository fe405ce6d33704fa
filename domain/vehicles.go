package domain

// Vehicle pipeline statuses.
const (
	VehicleStatusMarketing = "marketing"
	VehicleStatusQC        = "qc"
	VehicleStatusInventory = "inventory"
	VehicleStatusReserved  = "reserved"
	VehicleStatusDelivered = "delivered"
	VehicleStatusReturned  = "returned"
	VehicleStatusArchived  = StatusArchived
)

// VehiclePipeline builds the vehicle-inventory board. A reservation document
// gates the reserved column; the delivery invoice gates delivered and is the
// second gate of the sequence, so cancelling its flow reverts the vehicle to
// reserved. Archiving stamps ArchivedAt.
func VehiclePipeline() *Board {
	b := &Board{
		Name: "vehicles",
		Columns: []Column{
			{Key: VehicleStatusMarketing, Title: "MARKETING"},
			{Key: VehicleStatusQC, Title: "QC CHECK"},
			{Key: VehicleStatusInventory, Title: "INVENTORY"},
			{Key: VehicleStatusReserved, Title: "RESERVED", Sort: SortScheduledAsc},
			{Key: VehicleStatusDelivered, Title: "DELIVERED"},
			{Key: VehicleStatusReturned, Title: "RETURNED"},
			{Key: VehicleStatusArchived, Title: "ARCHIVED"},
		},
	}
	b.guard("", VehicleStatusReserved, Edge{Kind: EdgeDocument, DocumentKind: DocumentReservation})
	b.guard("", VehicleStatusDelivered, Edge{Kind: EdgeDocument, DocumentKind: DocumentInvoice, RevertOnCancel: true})
	b.guard("", VehicleStatusArchived, Edge{Kind: EdgeArchive})
	return b
}
