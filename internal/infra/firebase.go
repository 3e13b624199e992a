// README: Firebase Admin SDK initialisation and ID-token verifier for API callers.
package infra

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"
)

// RoleClaim is the custom claim carrying the caller's fleet role
// ("operator" or "device").
const RoleClaim = "fleet_role"

// CallerToken is the verified identity attached to an API request.
type CallerToken struct {
	UID  string
	Role string
}

// TokenVerifier turns a raw bearer token into a CallerToken.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*CallerToken, error)
}

type firebaseVerifier struct {
	client *auth.Client
}

// NewFirebaseVerifier creates a TokenVerifier backed by Firebase Auth.
// An empty credentialsFile falls back to application-default credentials.
func NewFirebaseVerifier(ctx context.Context, projectID, credentialsFile string) (TokenVerifier, error) {
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID}, opts...)
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase auth client: %w", err)
	}
	return &firebaseVerifier{client: client}, nil
}

func (v *firebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*CallerToken, error) {
	token, err := v.client.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, err
	}
	role, _ := token.Claims[RoleClaim].(string)
	return &CallerToken{UID: token.UID, Role: role}, nil
}
