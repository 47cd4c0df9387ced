// Package users implements the user workflow: registration, login, public profiles,
// the author listing, avatar changes and profile edits.
// This file defines the request and response bodies.
package users

// RegisterRequest is the body of POST /api/users/register.
type RegisterRequest struct {
	Name            string `json:"name" validate:"required" example:"Ann"`
	Email           string `json:"email" validate:"required" example:"ann@x.com"`
	Password        string `json:"password" validate:"required" example:"secret1"`
	ConfirmPassword string `json:"confirmPassword" validate:"required" example:"secret1"`
}

// LoginRequest is the body of POST /api/users/login.
type LoginRequest struct {
	Email    string `json:"email" validate:"required" example:"ann@x.com"`
	Password string `json:"password" validate:"required" example:"secret1"`
}

// LoginResponse carries the issued token and the identity it encodes.
type LoginResponse struct {
	Token string `json:"token"`
	ID    string `json:"id"`
	Name  string `json:"name" example:"Ann"`
}

// EditUserRequest is the body of PATCH /api/users/edit-user.
// Every field is required; the current password re-authenticates the caller.
type EditUserRequest struct {
	Name               string `json:"name" validate:"required"`
	Email              string `json:"email" validate:"required"`
	CurrentPassword    string `json:"currentPassword" validate:"required"`
	NewPassword        string `json:"newPassword" validate:"required"`
	ConfirmNewPassword string `json:"confirmNewPassword" validate:"required"`
}
