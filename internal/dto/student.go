package dto

// EnrollStudentRequest creates a student and opens its score ledger.
type EnrollStudentRequest struct {
	FullName string  `json:"full_name" validate:"required,max=150"`
	Email    *string `json:"email" validate:"omitempty,email"`
	ClassID  *string `json:"class_id" validate:"omitempty,max=64"`
}

// AssignClassRequest moves a student between classes. A null class_id unassigns.
type AssignClassRequest struct {
	ClassID *string `json:"class_id" validate:"omitempty,max=64"`
}
