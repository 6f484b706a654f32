package user

type CreateUserRequest struct {
	ClerkID       string `json:"clerkId" validate:"required"`
	Email         string `json:"email" validate:"required,email"`
	Username      string `json:"username" validate:"required,min=3,max=30"`
	FirstName     string `json:"firstName"`
	LastName      string `json:"lastName"`
	ImageURL      string `json:"imageUrl,omitempty"`
	EmailVerified bool   `json:"emailVerified"`
}

type UpdateProfileRequest struct {
	Username      string   `json:"username,omitempty" validate:"omitempty,min=3,max=30"`
	FirstName     string   `json:"firstName,omitempty"`
	LastName      string   `json:"lastName,omitempty"`
	ImageURL      string   `json:"imageUrl,omitempty" validate:"omitempty,url"`
	MonthlyBudget *float64 `json:"monthlyBudget,omitempty" validate:"omitempty,gte=0"`
	Currency      string   `json:"currency,omitempty" validate:"omitempty,oneof=USD EUR GBP JPY CAD AUD INR CNY BRL MXN"`
}
