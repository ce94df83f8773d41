package model

type DashboardSummary struct {
	TotalAppointments     int64   `json:"total_appointments"`
	ScheduledAppointments int64   `json:"scheduled_appointments"`
	BookedToday           int64   `json:"booked_today"`
	TotalSlots            int64   `json:"total_slots"`
	BookedSeats           int64   `json:"booked_seats"`
	AvailableSeats        int64   `json:"available_seats"`
	UtilizationPercent    float64 `json:"utilization_percent"`
	TotalDoses            int64   `json:"total_doses"`
}

// SeatTotals aggregates capacity across all slots.
type SeatTotals struct {
	Slots    int64 `bson:"slots"`
	Booked   int64 `bson:"booked"`
	Capacity int64 `bson:"capacity"`
}
