package request

type UpdateSessionTitleRequest struct {
	Title string `json:"title" binding:"required,max=200"`
}
