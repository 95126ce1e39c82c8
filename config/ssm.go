package config

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ssm"
)

// ParameterGetter is the subset of the SSM client used to resolve secrets.
type ParameterGetter interface {
	GetParameter(ctx context.Context, params *ssm.GetParameterInput, optFns ...func(*ssm.Options)) (*ssm.GetParameterOutput, error)
}

// NeedsParameters reports whether any SSM parameter is configured.
func (c SSMConfig) NeedsParameters() bool {
	return c.PasswordParameter != "" || c.SecretAccessKeyParameter != "" || c.BucketParameter != ""
}

// ResolveParameters overwrites secrets in cfg with the SSM parameters named
// in cfg.SSM. Parameters are decrypted.
func ResolveParameters(ctx context.Context, cfg *Config, client ParameterGetter) error {
	targets := []struct {
		name string
		dst  *string
	}{
		{cfg.SSM.PasswordParameter, &cfg.API.Password},
		{cfg.SSM.SecretAccessKeyParameter, &cfg.Storage.SecretAccessKey},
		{cfg.SSM.BucketParameter, &cfg.Storage.Bucket},
	}

	for _, target := range targets {
		if target.name == "" {
			continue
		}

		resp, err := client.GetParameter(ctx, &ssm.GetParameterInput{
			Name:           aws.String(target.name),
			WithDecryption: aws.Bool(true),
		})
		if err != nil {
			return fmt.Errorf("failed to get %s from SSM: %w", target.name, err)
		}
		if resp.Parameter == nil || resp.Parameter.Value == nil {
			return fmt.Errorf("SSM parameter %s has no value", target.name)
		}

		*target.dst = *resp.Parameter.Value
	}

	return nil
}
