// Package secret resolves the stats API credential.
package secret

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"

	"github.com/crimson-sun/vidstat/internal/model"
)

// TokenField is the JSON field of the secret that holds the API token.
const TokenField = "WISTIA_API_TOKEN"

// Provider resolves the API token. Failures are *model.CredentialError.
type Provider interface {
	Token(ctx context.Context) (string, error)
}

// SecretsManagerAPI is the subset of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

var _ SecretsManagerAPI = (*secretsmanager.Client)(nil)

// SecretsManager reads a JSON secret and returns its TokenField.
type SecretsManager struct {
	client   SecretsManagerAPI
	secretID string
}

// NewSecretsManager creates a Provider backed by AWS Secrets Manager.
func NewSecretsManager(client SecretsManagerAPI, secretID string) *SecretsManager {
	return &SecretsManager{client: client, secretID: secretID}
}

func (s *SecretsManager) Token(ctx context.Context) (string, error) {
	out, err := s.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(s.secretID),
	})
	if err != nil {
		return "", &model.CredentialError{SecretID: s.secretID, Err: err}
	}
	if out.SecretString == nil {
		return "", &model.CredentialError{SecretID: s.secretID, Err: errors.New("secret has no string value")}
	}

	var fields map[string]any
	if err := json.Unmarshal([]byte(*out.SecretString), &fields); err != nil {
		return "", &model.CredentialError{SecretID: s.secretID, Err: fmt.Errorf("secret is not a JSON object: %w", err)}
	}
	token, _ := fields[TokenField].(string)
	if token == "" {
		return "", &model.CredentialError{SecretID: s.secretID, Err: fmt.Errorf("field %s missing or empty", TokenField)}
	}
	return token, nil
}

// Static returns a fixed token. Used for local runs where the token comes
// from the environment.
type Static struct {
	Name  string
	Value string
}

func (s Static) Token(context.Context) (string, error) {
	if s.Value == "" {
		return "", &model.CredentialError{SecretID: s.Name, Err: errors.New("token is empty")}
	}
	return s.Value, nil
}
