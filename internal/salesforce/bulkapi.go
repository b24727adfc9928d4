package salesforce

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"

	"github.com/JonMunkholm/bulkloader/internal/bulk"
)

const (
	asyncNamespace = "http://www.force.com/2009/06/asyncapi/dataload"
	contentTypeXML = "application/xml"
	contentTypeCSV = "text/csv"
	jobContentType = "CSV"
	jobStateClosed = "Closed"
)

// BulkClient implements bulk.Service over the Salesforce async Bulk API.
type BulkClient struct {
	c *client
}

var _ bulk.Service = (*BulkClient)(nil)

// NewBulkClient creates an adapter bound to the given session.
func NewBulkClient(session Session, cfg ClientConfig) (*BulkClient, error) {
	if err := session.Validate(); err != nil {
		return nil, err
	}
	return &BulkClient{c: newClient(session, cfg)}, nil
}

// jobInfo is the async API job descriptor.
type jobInfo struct {
	XMLName     xml.Name `xml:"jobInfo"`
	Xmlns       string   `xml:"xmlns,attr,omitempty"`
	ID          string   `xml:"id,omitempty"`
	Operation   string   `xml:"operation,omitempty"`
	Object      string   `xml:"object,omitempty"`
	ContentType string   `xml:"contentType,omitempty"`
	State       string   `xml:"state,omitempty"`
}

// batchInfo is the async API batch descriptor.
type batchInfo struct {
	XMLName      xml.Name `xml:"batchInfo"`
	ID           string   `xml:"id"`
	JobID        string   `xml:"jobId"`
	State        string   `xml:"state"`
	StateMessage string   `xml:"stateMessage"`
}

// batchInfoList wraps the bulk status query response.
type batchInfoList struct {
	XMLName xml.Name    `xml:"batchInfoList"`
	Batches []batchInfo `xml:"batchInfo"`
}

// CreateJob registers a CSV job for the object and operation kind.
func (b *BulkClient) CreateJob(ctx context.Context, object string, op bulk.Operation) (string, error) {
	const opName = "create job"

	payload, err := marshalDescriptor(jobInfo{
		Xmlns:       asyncNamespace,
		Operation:   string(op),
		Object:      object,
		ContentType: jobContentType,
	})
	if err != nil {
		return "", &bulk.RemoteServiceError{Op: opName, Message: err.Error()}
	}

	resp, err := b.c.do(ctx, opName, http.MethodPost, b.c.session.endpoint()+"/job", contentTypeXML, payload)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var job jobInfo
	if err := decodeDescriptor(opName, resp.Body, &job); err != nil {
		return "", err
	}
	if job.ID == "" {
		return "", &bulk.RemoteServiceError{Op: opName, Message: "response carried no job id"}
	}
	return job.ID, nil
}

// AddBatch submits one CSV chunk payload to an open job.
func (b *BulkClient) AddBatch(ctx context.Context, jobID string, body io.Reader) (string, error) {
	const opName = "submit batch"

	url := fmt.Sprintf("%s/job/%s/batch", b.c.session.endpoint(), jobID)
	resp, err := b.c.do(ctx, opName, http.MethodPost, url, contentTypeCSV, body)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var batch batchInfo
	if err := decodeDescriptor(opName, resp.Body, &batch); err != nil {
		return "", err
	}
	if batch.ID == "" {
		return "", &bulk.RemoteServiceError{Op: opName, Message: "response carried no batch id"}
	}
	return batch.ID, nil
}

// CloseJob transitions the job to Closed so no further batches are accepted.
func (b *BulkClient) CloseJob(ctx context.Context, jobID string) error {
	const opName = "close job"

	payload, err := marshalDescriptor(jobInfo{Xmlns: asyncNamespace, State: jobStateClosed})
	if err != nil {
		return &bulk.RemoteServiceError{Op: opName, Message: err.Error()}
	}

	url := fmt.Sprintf("%s/job/%s", b.c.session.endpoint(), jobID)
	resp, err := b.c.do(ctx, opName, http.MethodPost, url, contentTypeXML, payload)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// BatchStates queries the state of every batch of the job in one call.
func (b *BulkClient) BatchStates(ctx context.Context, jobID string) ([]bulk.BatchStatus, error) {
	const opName = "query batch states"

	url := fmt.Sprintf("%s/job/%s/batch", b.c.session.endpoint(), jobID)
	resp, err := b.c.do(ctx, opName, http.MethodGet, url, "", nil)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	var list batchInfoList
	if err := decodeDescriptor(opName, resp.Body, &list); err != nil {
		return nil, err
	}

	states := make([]bulk.BatchStatus, 0, len(list.Batches))
	for _, bi := range list.Batches {
		states = append(states, bulk.BatchStatus{
			BatchID: bi.ID,
			State:   bulk.BatchState(bi.State),
		})
	}
	return states, nil
}

// BatchResult opens the CSV result stream of a terminal batch.
func (b *BulkClient) BatchResult(ctx context.Context, jobID, batchID string) (io.ReadCloser, error) {
	const opName = "fetch batch results"

	url := fmt.Sprintf("%s/job/%s/batch/%s/result", b.c.session.endpoint(), jobID, batchID)
	resp, err := b.c.do(ctx, opName, http.MethodGet, url, "", nil)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func marshalDescriptor(v any) (io.Reader, error) {
	data, err := xml.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("marshal descriptor: %w", err)
	}
	return bytes.NewReader(append([]byte(xml.Header), data...)), nil
}

// decodeDescriptor reads the whole response body before unmarshalling. No
// size cap: batchInfoList grows with the job's batch count and truncating it
// would corrupt every status query on a large job.
func decodeDescriptor(op string, body io.Reader, v any) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return &bulk.TransportError{Op: op, Err: err}
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return &bulk.RemoteServiceError{Op: op, Message: fmt.Sprintf("malformed response: %v", err)}
	}
	return nil
}
