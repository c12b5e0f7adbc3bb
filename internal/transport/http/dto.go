package http

type ErrorResponse struct {
	Error string `json:"error"`
}

type PostMessageRequest struct {
	Room     string `json:"room"`
	Username string `json:"username"`
	Text     string `json:"text"`
}
