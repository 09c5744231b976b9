package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
)

// AccessToken is the client-credential token response.
type AccessToken struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
}

// GetAccessToken exchanges app credentials for an access token.
func (c *Client) GetAccessToken(ctx context.Context, appID, appSecret string) (*AccessToken, error) {
	q := url.Values{}
	q.Set("grant_type", "client_credential")
	q.Set("appid", appID)
	q.Set("secret", appSecret)

	var out AccessToken
	if err := c.do(ctx, "token", http.MethodGet, "/cgi-bin/token", q, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// UploadTicket is the signed upload target for a cloud path.
type UploadTicket struct {
	URL           string `json:"url"`
	Token         string `json:"token"`
	Authorization string `json:"authorization"`
	FileID        string `json:"file_id"`
	CosFileID     string `json:"cos_file_id"`
}

// UploadFile requests an upload ticket for cloudPath.
func (c *Client) UploadFile(ctx context.Context, cloudPath string) (*UploadTicket, error) {
	body := map[string]string{"env": c.Env(), "path": cloudPath}
	var out UploadTicket
	if err := c.post(ctx, "uploadfile", "/tcb/uploadfile", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DownloadRequest names a file and how long its link stays valid, in seconds.
type DownloadRequest struct {
	FileID string `json:"fileid"`
	MaxAge int    `json:"max_age"`
}

// DownloadLink is one entry of a batch download result.
type DownloadLink struct {
	FileID      string `json:"fileid"`
	DownloadURL string `json:"download_url"`
	Status      int    `json:"status"`
	ErrMsg      string `json:"errmsg,omitempty"`
}

// BatchDownloadFile resolves temporary download links.
func (c *Client) BatchDownloadFile(ctx context.Context, files []DownloadRequest) ([]DownloadLink, error) {
	body := map[string]interface{}{"env": c.Env(), "file_list": files}
	var out struct {
		FileList []DownloadLink `json:"file_list"`
	}
	if err := c.post(ctx, "batchdownloadfile", "/tcb/batchdownloadfile", body, &out); err != nil {
		return nil, err
	}
	return out.FileList, nil
}

// FunctionResult carries the raw cloud function response.
type FunctionResult struct {
	RespData string `json:"resp_data"`
}

// Decode unmarshals RespData into dest.
func (r *FunctionResult) Decode(dest interface{}) error {
	if r.RespData == "" {
		return nil
	}
	return json.Unmarshal([]byte(r.RespData), dest)
}

// InvokeCloudFunction calls a cloud function. data is sent as a JSON string.
func (c *Client) InvokeCloudFunction(ctx context.Context, name string, data interface{}) (*FunctionResult, error) {
	encoded, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("encode function data: %w", err)
	}
	body := map[string]string{"env": c.Env(), "function_name": name, "data": string(encoded)}
	var out FunctionResult
	if err := c.post(ctx, "invokecloudfunction", "/tcb/invokecloudfunction", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// MigrateStatus reports a database import or export job.
type MigrateStatus struct {
	Status        string `json:"status"`
	RecordSuccess int    `json:"record_success"`
	RecordFail    int    `json:"record_fail"`
	ErrMsg        string `json:"err_msg,omitempty"`
	FileURL       string `json:"file_url,omitempty"`
}

// GetDatabaseMigrateStatus polls a migration job.
func (c *Client) GetDatabaseMigrateStatus(ctx context.Context, jobID int64) (*MigrateStatus, error) {
	body := map[string]interface{}{"env": c.Env(), "job_id": jobID}
	var out MigrateStatus
	if err := c.post(ctx, "databasemigratequery", "/tcb/databasemigratequery", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
