package ddns

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"unicode/utf8"

	"github.com/sirupsen/logrus"
)

const (
	DefaultAliyunCLI    = "aliyun"
	DefaultAliyunRegion = "cn-hangzhou"
)

// AliyunCLI implements ddns.RecordStore by running the Alibaba Cloud command line tool.
//
// The tool must already be configured with credentials (aliyun configure)
// that are allowed to call alidns DescribeDomainRecords and UpdateDomainRecord.
type AliyunCLI struct {
	Path   string
	Region string
	logger logrus.FieldLogger
}

func NewAliyunCLI(path, region string) *AliyunCLI {
	if path == "" {
		path = DefaultAliyunCLI
	}
	if region == "" {
		region = DefaultAliyunRegion
	}
	return &AliyunCLI{Path: path, Region: region, logger: discard}
}

func (a *AliyunCLI) SetLogger(logger logrus.FieldLogger) {
	a.logger = logger
}

type describeDomainRecordsResponse struct {
	DomainRecords struct {
		Record []Record `json:"Record"`
	} `json:"DomainRecords"`
}

// ListRecords implements ddns.RecordStore.
func (a *AliyunCLI) ListRecords(ctx context.Context, domain string) ([]Record, error) {
	var rsp describeDomainRecordsResponse
	err := a.execJSON(ctx, &rsp,
		"alidns", "DescribeDomainRecords",
		"--region", a.Region,
		"--DomainName", domain,
	)
	if err != nil {
		return nil, err
	}
	return rsp.DomainRecords.Record, nil
}

// UpdateA implements ddns.RecordStore.
func (a *AliyunCLI) UpdateA(ctx context.Context, recordID, rr, value string) error {
	// any JSON value is accepted; the ids are only logged when present
	var rsp any
	err := a.execJSON(ctx, &rsp,
		"alidns", "UpdateDomainRecord",
		"--region", a.Region,
		"--RecordId", recordID,
		"--RR", rr,
		"--Type", "A",
		"--Value", value,
	)
	if err != nil {
		return err
	}
	if m, ok := rsp.(map[string]any); ok {
		a.logger.Debugf("updated record %v, request id %v", m["RecordId"], m["RequestId"])
	}
	return nil
}

func (a *AliyunCLI) execJSON(ctx context.Context, v any, args ...string) error {
	if a.logger == nil {
		a.logger = discard
	}
	cmd := exec.CommandContext(ctx, a.Path, args...)
	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("cmd output fail [%s %s]: %s: %s", a.Path, args[1], exitErr.ProcessState, bytes.TrimSpace(exitErr.Stderr))
		}
		return fmt.Errorf("fail to exec cmd [%s]: %w", a.Path, err)
	}

	if !utf8.Valid(out) {
		return errors.New("stdout not string")
	}
	a.logger.Debugf("std_output [%s]", out)

	if err := json.Unmarshal(out, v); err != nil {
		return fmt.Errorf("invalid json [%s]: %w", bytes.TrimSpace(out), err)
	}
	return nil
}
