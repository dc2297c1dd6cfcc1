package models

// PreviewLength is the number of characters of page text shown to the operator
const PreviewLength = 200

// PageRow is the extraction and match result for one uploaded page
type PageRow struct {
	Page        int        `json:"page"` // 1-based
	Nit         string     `json:"nit"`
	TextPreview string     `json:"textPreview"`
	Matched     *Recipient `json:"matched"`
}

// UploadResult is returned after a document upload
type UploadResult struct {
	UploadID   string    `json:"uploadId"`
	TotalPages int       `json:"totalPages"`
	Rows       []PageRow `json:"rows"`
}
