package storage

import (
	"context"
	stderrors "errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"

	"github.com/jittakal/kafetl/internal/errors"
	"github.com/jittakal/kafetl/pkg/record"
)

type fakeBlobClient struct {
	container string
	blob      string
	body      []byte
	err       error
}

func (c *fakeBlobClient) UploadFile(ctx context.Context, containerName string, blobName string, file *os.File, _ *azblob.UploadFileOptions) (azblob.UploadFileResponse, error) {
	if c.err != nil {
		return azblob.UploadFileResponse{}, c.err
	}
	body, err := io.ReadAll(file)
	if err != nil {
		return azblob.UploadFileResponse{}, err
	}
	c.container, c.blob, c.body = containerName, blobName, body
	return azblob.UploadFileResponse{}, nil
}

func TestAzureConfig_ConnectionString(t *testing.T) {
	tests := []struct {
		name   string
		config AzureConfig
		want   string
	}{
		{
			name:   "public cloud",
			config: AzureConfig{AccountName: "acct", AccountKey: "a2V5"},
			want:   "DefaultEndpointsProtocol=https;AccountName=acct;AccountKey=a2V5;EndpointSuffix=core.windows.net",
		},
		{
			name:   "custom endpoint",
			config: AzureConfig{AccountName: "devstoreaccount1", AccountKey: "a2V5", Endpoint: "http://127.0.0.1:10000/devstoreaccount1"},
			want:   "DefaultEndpointsProtocol=https;AccountName=devstoreaccount1;AccountKey=a2V5;BlobEndpoint=http://127.0.0.1:10000/devstoreaccount1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ConnectionString(); got != tt.want {
				t.Errorf("ConnectionString() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestAzureWriter_Write(t *testing.T) {
	client := &fakeBlobClient{}
	w, err := newAzureWriter(AzureConfig{ContainerName: "lake"}, client, readings, record.FormatAvro, "gzip", discardLogger(), nil)
	if err != nil {
		t.Fatalf("newAzureWriter() error = %v", err)
	}
	defer w.Close()

	size, err := w.Write(context.Background(), testRecords(4), "wasbs://lake/raw/readings/")
	if err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	if client.container != "lake" {
		t.Errorf("container = %s, want lake", client.container)
	}
	if !strings.HasPrefix(client.blob, "raw/readings/part_") || !strings.HasSuffix(client.blob, ".avro.gz") {
		t.Errorf("blob = %s, want raw/readings/part_*.avro.gz", client.blob)
	}
	if int64(len(client.body)) != size {
		t.Errorf("uploaded %d bytes, Write() reported %d", len(client.body), size)
	}
}

func TestAzureWriter_UploadFailure(t *testing.T) {
	client := &fakeBlobClient{err: stderrors.New("503 server busy")}
	w, err := newAzureWriter(AzureConfig{ContainerName: "lake"}, client, readings, record.FormatParquet, "", discardLogger(), nil)
	if err != nil {
		t.Fatalf("newAzureWriter() error = %v", err)
	}

	_, err = w.Write(context.Background(), testRecords(1), "wasbs://lake/raw/")
	if !errors.IsRetryable(err) {
		t.Errorf("Write() error = %v, want retryable upload error", err)
	}
}
