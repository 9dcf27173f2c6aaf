package response

type Response struct {
	Msg      string `json:"msg"`
	Category string `json:"category,omitempty"`
	Data     any    `json:"data"`
}
