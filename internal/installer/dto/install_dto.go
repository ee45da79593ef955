package dto

type InstallRequest struct {
	ModelPath   string `json:"model_path" binding:"required"`
	CallbackURL string `json:"callback_url" binding:"required"`
}

type InstallResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

type ListInstallsRequest struct {
	Status   string `form:"status"`
	PageSize int    `form:"page_size"`
	Cursor   string `form:"cursor"`
}

type ListInstallsResponse struct {
	Installs   []InstallDTO `json:"installs"`
	NextCursor string       `json:"next_cursor,omitempty"`
}

type InstallDTO struct {
	RequestID     string `json:"request_id"`
	ModelPath     string `json:"model_path"`
	CallbackURL   string `json:"callback_url"`
	Status        string `json:"status"`
	Message       string `json:"message,omitempty"`
	CallbackError string `json:"callback_error,omitempty"`
	CreatedAt     string `json:"created_at"`
	UpdatedAt     string `json:"updated_at"`
}
