package dto

type ReportRequest struct {
	PlateFingerprint string `json:"plate_fingerprint" binding:"required"`
	Urgency          string `json:"urgency"`
	Message          string `json:"message"`
	TTLSeconds       int    `json:"ttl_seconds"`
}

type RespondRequest struct {
	Response string `json:"response" binding:"required"`
}

type RegisterPlateRequest struct {
	PlateFingerprint string `json:"plate_fingerprint" binding:"required"`
	Alias            string `json:"alias"`
}
