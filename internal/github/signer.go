package github

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/aws/aws-sdk-go-v2/service/kms/types"
	"github.com/bradleyfalzon/ghinstallation/v2"
	"github.com/golang-jwt/jwt/v4"
)

// KMSClient defines the AWS API surface required for KMS signing.
type KMSClient interface {
	Sign(ctx context.Context, in *kms.SignInput, optFns ...func(*kms.Options)) (*kms.SignOutput, error)
}

// kmsSigner signs GitHub App JWTs with an RSA key held in AWS KMS. The
// private key material never leaves KMS.
type kmsSigner struct {
	ctx    context.Context // startup context for cancellation
	client KMSClient
	arn    string
}

var _ ghinstallation.Signer = kmsSigner{}

// NewAWSKMSSigner creates a signer for the KMS key with the given ARN, using
// the default AWS credential chain.
func NewAWSKMSSigner(ctx context.Context, arn string) (ghinstallation.Signer, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS configuration: %w", err)
	}

	return newKMSSigner(ctx, kms.NewFromConfig(cfg), arn), nil
}

func newKMSSigner(ctx context.Context, client KMSClient, arn string) kmsSigner {
	return kmsSigner{
		ctx:    ctx,
		client: client,
		arn:    arn,
	}
}

// Sign produces a compact RS256 JWT: the signing string is built locally, and
// its SHA-256 digest is signed by KMS.
func (s kmsSigner) Sign(claims jwt.Claims) (string, error) {
	signingString, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SigningString()
	if err != nil {
		return "", fmt.Errorf("could not build JWT signing string: %w", err)
	}

	hash := sha256.Sum256([]byte(signingString))
	out, err := s.client.Sign(s.ctx, &kms.SignInput{
		KeyId:            aws.String(s.arn),
		Message:          hash[:],
		MessageType:      types.MessageTypeDigest,
		SigningAlgorithm: types.SigningAlgorithmSpecRsassaPkcs1V15Sha256,
	})
	if err != nil {
		return "", fmt.Errorf("KMS signing failed: %w", err)
	}

	return signingString + "." + jwt.EncodeSegment(out.Signature), nil
}
