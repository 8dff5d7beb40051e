package domain

import "time"

type User struct {
	ID           int       `json:"id"`
	Email        string    `json:"email"`
	FirstName    string    `json:"first_name"`
	Username     string    `json:"username"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"created_at"`
}

type SignupDTO struct {
	Email     string `json:"email" binding:"required,email"`
	Password  string `json:"password" binding:"required,min=6,max=72"`
	FirstName string `json:"first_name" binding:"required"`
	Username  string `json:"username" binding:"required,min=3,max=50"`
}

type LoginDTO struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type AuthResponseDTO struct {
	Token     string    `json:"token"`
	UserID    int       `json:"user_id"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// UserProfile is a user with the ids of their favorite lots.
type UserProfile struct {
	Email       string `json:"email"`
	FirstName   string `json:"first_name"`
	Username    string `json:"username"`
	ParkingLots []int  `json:"parking_lots"`
}
