package types

// PaginationParams represents common pagination request parameters.
type PaginationParams struct {
	Limit  int `form:"limit,default=20" binding:"omitempty,gte=0"`
	Offset int `form:"offset,default=0" binding:"omitempty,gte=0"`
}
