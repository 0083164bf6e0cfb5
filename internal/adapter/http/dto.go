package http

// Envelope is the wire shape of every response: {"success": bool,
// "result": payload}. Failures carry an error message or null as result.
type Envelope struct {
	Success bool `json:"success"`
	Result  any  `json:"result"`
}

func success(result any) Envelope {
	return Envelope{Success: true, Result: result}
}

func failure(result any) Envelope {
	return Envelope{Success: false, Result: result}
}

// ActionRequest is the single dispatch body; which fields matter depends
// on the action.
type ActionRequest struct {
	Action         string `json:"action" binding:"required,oneof=send details cron"`
	Title          string `json:"title"`
	Message        string `json:"message"`
	CountryID      int64  `json:"country_id"`
	NotificationID int64  `json:"notification_id"`
}

type SendResult struct {
	NotificationID int64 `json:"notification_id"`
}
