package config

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/secretsmanager"
)

// SecretResolver fetches a secret value by id.
type SecretResolver interface {
	ResolveSecret(ctx context.Context, id string) (string, error)
}

// SecretsManagerAPI is the part of the Secrets Manager client used here.
type SecretsManagerAPI interface {
	GetSecretValue(ctx context.Context, params *secretsmanager.GetSecretValueInput, optFns ...func(*secretsmanager.Options)) (*secretsmanager.GetSecretValueOutput, error)
}

// secretJSONKeys are looked up, in order, when a secret holds a JSON object.
var secretJSONKeys = []string{"clientsecret", "client_secret", "OIDC_CLIENTSECRET"}

// AWSSecretResolver reads secrets from AWS Secrets Manager. A secret may hold
// the client secret as plain text or as one field of a JSON object.
type AWSSecretResolver struct {
	client SecretsManagerAPI
}

var _ SecretResolver = (*AWSSecretResolver)(nil)

func NewAWSSecretResolver(client SecretsManagerAPI) *AWSSecretResolver {
	return &AWSSecretResolver{client: client}
}

// NewAWSSecretResolverFromRegion uses the default AWS credential chain. An
// empty region falls back to the SDK's own resolution (AWS_REGION etc).
func NewAWSSecretResolverFromRegion(ctx context.Context, region string) (*AWSSecretResolver, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading aws config: %w", err)
	}
	return NewAWSSecretResolver(secretsmanager.NewFromConfig(cfg)), nil
}

func (r *AWSSecretResolver) ResolveSecret(ctx context.Context, id string) (string, error) {
	output, err := r.client.GetSecretValue(ctx, &secretsmanager.GetSecretValueInput{
		SecretId:     aws.String(id),
		VersionStage: aws.String("AWSCURRENT"),
	})
	if err != nil {
		return "", fmt.Errorf("fetching secret %s: %w", id, err)
	}

	var payload string
	switch {
	case output.SecretString != nil:
		payload = *output.SecretString
	case len(output.SecretBinary) > 0:
		payload = string(output.SecretBinary)
	default:
		return "", fmt.Errorf("secret %s has no payload", id)
	}
	payload = strings.TrimSpace(payload)

	if !strings.HasPrefix(payload, "{") {
		return payload, nil
	}
	var kv map[string]any
	if err := json.Unmarshal([]byte(payload), &kv); err != nil {
		return "", fmt.Errorf("parsing secret %s as JSON: %w", id, err)
	}
	for _, key := range secretJSONKeys {
		if v, ok := kv[key].(string); ok && v != "" {
			return v, nil
		}
	}
	return "", fmt.Errorf("secret %s has none of the fields %s", id, strings.Join(secretJSONKeys, ", "))
}
