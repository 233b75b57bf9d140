package firebase

import (
	"context"

	"firebase.google.com/go/v4/auth"
)

// VerifiedToken is the part of a verified ID token the app cares about.
type VerifiedToken struct {
	UID      string
	Phone    string
	Email    string
	Role     string
	Provider string
}

type FirebaseAuthClient struct {
	client *auth.Client
}

func NewFirebaseAuthClient(client *auth.Client) *FirebaseAuthClient {
	return &FirebaseAuthClient{
		client: client,
	}
}

func (f *FirebaseAuthClient) VerifyToken(ctx context.Context, token string) (*VerifiedToken, error) {
	result, err := f.client.VerifyIDToken(ctx, token)
	if err != nil {
		return nil, err
	}

	verified := &VerifiedToken{
		UID:      result.UID,
		Provider: result.Firebase.SignInProvider,
	}
	if phone, ok := result.Claims["phone_number"].(string); ok {
		verified.Phone = phone
	}
	if email, ok := result.Claims["email"].(string); ok {
		verified.Email = email
	}
	// Workshops get a custom "role" claim when their account is provisioned.
	if role, ok := result.Claims["role"].(string); ok {
		verified.Role = role
	}
	return verified, nil
}
