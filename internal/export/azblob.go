package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/to"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/yndnr/scrapedelta/internal/core/domain"
	"github.com/yndnr/scrapedelta/pkg/seal"
)

// AzBlobConfig configures an Azure Blob Storage sink. ConnectionString wins
// over the shared key fields.
type AzBlobConfig struct {
	Container        string
	Prefix           string
	AccountURL       string
	AccountName      string
	AccountKey       string
	ConnectionString string
}

// AzBlob uploads artifacts to a blob container.
type AzBlob struct {
	client    *azblob.Client
	container string
	prefix    string
}

// NewAzBlob builds the client. Missing or malformed credentials are
// domain.ErrConfig.
func NewAzBlob(cfg AzBlobConfig) (*AzBlob, error) {
	if cfg.Container == "" {
		return nil, domain.ErrConfig.WithDetails("azblob: container is required")
	}

	var (
		client *azblob.Client
		err    error
	)
	switch {
	case cfg.ConnectionString != "":
		client, err = azblob.NewClientFromConnectionString(cfg.ConnectionString, nil)
	case cfg.AccountURL != "" && cfg.AccountName != "" && cfg.AccountKey != "":
		var cred *azblob.SharedKeyCredential
		cred, err = azblob.NewSharedKeyCredential(cfg.AccountName, cfg.AccountKey)
		if err == nil {
			client, err = azblob.NewClientWithSharedKeyCredential(cfg.AccountURL, cred, nil)
		}
	default:
		return nil, domain.ErrConfig.WithDetails("azblob: no credentials configured")
	}
	if err != nil {
		return nil, domain.ErrConfig.WithDetails("azblob: invalid credentials").WithCause(err)
	}
	return &AzBlob{client: client, container: cfg.Container, prefix: cfg.Prefix}, nil
}

// Export implements Sink.
func (a *AzBlob) Export(ctx context.Context, artifactPath, logicalName string) error {
	f, err := os.Open(artifactPath) // #nosec G304 -- path comes from the store.
	if err != nil {
		return fmt.Errorf("azblob: open artifact: %w", err)
	}
	defer f.Close()

	_, err = a.client.UploadFile(ctx, a.container, objectKey(a.prefix, logicalName), f, &azblob.UploadFileOptions{
		HTTPHeaders: &blob.HTTPHeaders{BlobContentType: to.Ptr(contentType(logicalName))},
	})
	if err != nil {
		return fmt.Errorf("azblob: upload %s: %w", logicalName, err)
	}
	return nil
}

func azureStatus(err error) int {
	var re *azcore.ResponseError
	if errors.As(err, &re) {
		return re.StatusCode
	}
	return 0
}

func contentType(logicalName string) string {
	if strings.HasSuffix(logicalName, seal.Extension) {
		return "application/octet-stream"
	}
	return "text/csv; charset=utf-8"
}
