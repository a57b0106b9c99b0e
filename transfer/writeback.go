package transfer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"crmbridge/migrator/datalake/model"
)

const (
	DefaultFileObject      = "ODMS_File__c"
	DefaultParentFlagField = "Ready_For_DMS_Upload__c"
	migratedStatus         = "SuccessToDMS"
)

// DefaultFlaggedParents are the parent objects that carry the upload flag.
var DefaultFlaggedParents = []string{
	"OReceipt__c", "OChallan__c", "OApprovalRequest__c", "OContactRecording__c", "OReceiptBatch__c",
}

var errParentNotFlagged = errors.New("parent upload flag was not set")

// CRMWriter is the part of the CRM client the write-back needs.
type CRMWriter interface {
	CreateRecord(ctx context.Context, sobject string, fields map[string]any) (string, error)
	UpdateRecords(ctx context.Context, sobject string, ids []string, fields map[string]any) ([]model.SaveResult, error)
}

// WriteBackConfig names the CRM objects a successful transfer is recorded on.
type WriteBackConfig struct {
	FileObject      string
	ParentFlagField string
	// FlaggedParents limits the flag update to these parent objects.
	FlaggedParents []string
}

// WriteBack records each transferred file as a CRM record and flags its parent.
type WriteBack struct {
	crm     CRMWriter
	cfg     WriteBackConfig
	flagged map[string]struct{}
}

// NewWriteBack fills unset config values with the defaults.
func NewWriteBack(crm CRMWriter, cfg WriteBackConfig) *WriteBack {
	if cfg.FileObject == "" {
		cfg.FileObject = DefaultFileObject
	}
	if cfg.ParentFlagField == "" {
		cfg.ParentFlagField = DefaultParentFlagField
	}
	if len(cfg.FlaggedParents) == 0 {
		cfg.FlaggedParents = DefaultFlaggedParents
	}

	flagged := make(map[string]struct{}, len(cfg.FlaggedParents))
	for _, o := range cfg.FlaggedParents {
		flagged[strings.TrimSpace(o)] = struct{}{}
	}

	return &WriteBack{crm: crm, cfg: cfg, flagged: flagged}
}

// Record inserts the file record, then sets the parent's upload flag when the
// parent object carries one.
func (w *WriteBack) Record(ctx context.Context, att model.Attachment, dmsID string) error {
	if _, err := w.crm.CreateRecord(ctx, w.cfg.FileObject, w.fileFields(att, dmsID)); err != nil {
		return fmt.Errorf("create %s: %w", w.cfg.FileObject, err)
	}

	if att.LinkedEntityID == "" {
		return nil
	}
	if _, ok := w.flagged[att.LinkedEntityType]; !ok {
		return nil
	}

	results, err := w.crm.UpdateRecords(ctx, att.LinkedEntityType, []string{att.LinkedEntityID},
		map[string]any{w.cfg.ParentFlagField: true})
	if err != nil {
		return fmt.Errorf("flag %s %s: %w", att.LinkedEntityType, att.LinkedEntityID, err)
	}
	for _, r := range results {
		if !r.Success {
			return fmt.Errorf("%w, %s %s: %v", errParentNotFlagged, att.LinkedEntityType, att.LinkedEntityID, r.Errors)
		}
	}

	return nil
}

func (w *WriteBack) fileFields(att model.Attachment, dmsID string) map[string]any {
	fields := map[string]any{
		"ContentDocumentId__c":  att.ContentDocumentID,
		"Document_Name__c":      att.FileName(),
		"DMSId__c":              dmsID,
		"DMS_Url__c":            dmsID,
		"Migrate_Status__c":     migratedStatus,
		"Push_to_DMS__c":        true,
		"IsUploadedToDMS__c":    true,
		"IsUploaded__c":         true,
		"Content_File_Owner__c": att.Owner,
	}
	if att.LinkedEntityID != "" {
		fields["sObject_Record_Id__c"] = att.LinkedEntityID
		fields["sObject_Name__c"] = att.LinkedEntityType
	}
	if att.Classification != "" {
		fields["Vertical__c"] = att.Classification
	}
	return fields
}
