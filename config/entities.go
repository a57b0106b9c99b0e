package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

const defaultReconcileField = "Migrated_to_Mongo__c"

var errInvalidEntities = errors.New("invalid entities file")

// EntitiesError wraps a validation failure of the entity table.
func EntitiesError(reason string) error {
	return fmt.Errorf("%w: %s", errInvalidEntities, reason)
}

// EntityTable is the sync job description: which CRM objects to copy, how
// to route them and which metadata the DMS expects.
type EntityTable struct {
	Classification ClassificationConfig `yaml:"classification"`
	ReconcileField string               `yaml:"reconcile_field"`
	Entities       []EntityConfig       `yaml:"entities"`
	DMSMetadata    DMSMetadataConfig    `yaml:"dms_metadata"`
	// TransferFilter restricts transferred files to one parent object and classification.
	TransferFilter TransferFilterConfig `yaml:"transfer_filter"`
	// WriteBack records transferred files in the CRM when enabled.
	WriteBack WriteBackConfig `yaml:"write_back"`
}

type ClassificationConfig struct {
	AllowList    []string `yaml:"allow_list"`
	DefaultLabel string   `yaml:"default_label"`
}

type EntityConfig struct {
	Name                string `yaml:"name"`
	Query               string `yaml:"query"`
	ClassificationField string `yaml:"classification_field"`
	Reconcile           bool   `yaml:"reconcile"`
}

type DMSMetadataConfig struct {
	Vertical         string `yaml:"vertical"`
	SourceSys        string `yaml:"source_sys"`
	Module           string `yaml:"module"`
	LatLong          string `yaml:"lat_long"`
	ImageSrc         string `yaml:"image_src"`
	ImageSrcID       string `yaml:"image_src_id"`
	ImageCategory    string `yaml:"image_category"`
	ImageSubCategory string `yaml:"image_sub_category"`
	Stage            string `yaml:"stage"`
	Status           string `yaml:"status"`
	BranchCode       string `yaml:"branch_code"`
	Branch           string `yaml:"branch"`
	KeyID            string `yaml:"key_id"`
}

type WriteBackConfig struct {
	Enabled         bool     `yaml:"enabled"`
	FileObject      string   `yaml:"file_object"`
	ParentFlagField string   `yaml:"parent_flag_field"`
	FlaggedParents  []string `yaml:"flagged_parents"`
}

type TransferFilterConfig struct {
	Object              string `yaml:"object"`
	ClassificationField string `yaml:"classification_field"`
	Classification      string `yaml:"classification"`
}

// LoadEntities reads the entity table from path, or returns the built-in table when path is empty.
func LoadEntities(path string) (*EntityTable, error) {
	if path == "" {
		return DefaultEntities(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entities file: %w", err)
	}

	return ParseEntities(data)
}

// ParseEntities decodes and validates a YAML entity table.
func ParseEntities(data []byte) (*EntityTable, error) {
	var table EntityTable
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("failed to parse entities file: %w", err)
	}

	if table.ReconcileField == "" {
		table.ReconcileField = defaultReconcileField
	}
	if table.Classification.DefaultLabel == "" {
		table.Classification.DefaultLabel = "OTHER"
	}

	seen := make(map[string]struct{}, len(table.Entities))
	for i, e := range table.Entities {
		if strings.TrimSpace(e.Name) == "" {
			return nil, EntitiesError(fmt.Sprintf("entity %d has no name", i))
		}
		if strings.TrimSpace(e.Query) == "" {
			return nil, EntitiesError(fmt.Sprintf("entity %s has no query", e.Name))
		}
		if _, dup := seen[e.Name]; dup {
			return nil, EntitiesError(fmt.Sprintf("entity %s is listed twice", e.Name))
		}
		seen[e.Name] = struct{}{}
	}

	return &table, nil
}

// Select returns the named entities in table order. No names selects all.
func (t *EntityTable) Select(names []string) ([]EntityConfig, error) {
	if len(names) == 0 {
		return t.Entities, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[n] = true
	}

	var out []EntityConfig
	for _, e := range t.Entities {
		if want[e.Name] {
			out = append(out, e)
			delete(want, e.Name)
		}
	}
	for n := range want {
		return nil, EntitiesError(fmt.Sprintf("unknown entity %s", n))
	}

	return out, nil
}

// DefaultEntities is the built-in sync table.
func DefaultEntities() *EntityTable {
	return &EntityTable{
		Classification: ClassificationConfig{DefaultLabel: "OTHER"},
		ReconcileField: defaultReconcileField,
		Entities: []EntityConfig{
			{
				Name: "OContactRecording__c",
				Query: `SELECT Id, Name, Agreement__c, Agreement__r.Name,
					Question1__c, Response1__c, Question2__c, Response2__c, SystemModstamp
					FROM OContactRecording__c`,
			},
			{
				Name: "OReceipt__c",
				Query: `SELECT Id, Name, AgreementId__c, AgreementNo__c, Amount__c, CreatedDate, SystemModstamp
					FROM OReceipt__c`,
			},
			{
				Name: "OApprovalRequest__c",
				Query: `SELECT Id, Name, Agreement__c, ApprovalType__c, Status__c, SystemModstamp
					FROM OApprovalRequest__c`,
			},
			{
				Name: "OChallan__c",
				Query: `SELECT Id, Name, Amount__c, BankName__c, Status__c, SystemModstamp
					FROM OChallan__c`,
			},
			{
				Name: "OReceiptBatch__c",
				Query: `SELECT Id, Name, Challan__c, TotalAmount__c, TotalReceipts__c, Status__c, SystemModstamp
					FROM OReceiptBatch__c`,
			},
			{
				Name: "OCollectionPayment__c",
				Query: `SELECT Id, Name, AdviceAmount__c, AgreementNo__c, BatchId__c, ChargeAmount__c, Receipt__c,
					SystemModstamp
					FROM OCollectionPayment__c`,
			},
			{
				Name: "ODMSFiles__c",
				Query: `SELECT Id, Name, CIF_ID__c, ContentDocumentId__c, Contentversion_Id__c,
					DMSId__c, DMS_Url__c, Push_to_DMS__c, Heap_Size_Issue__c,
					Sarfaesi_Documents__c, Migrated_to_Mongo__c, ONotice__r.Vertical__c, SystemModstamp
					FROM ODMSFiles__c
					WHERE DMSId__c != null AND Migrated_to_Mongo__c = false`,
				ClassificationField: "ONotice__r.Vertical__c",
				Reconcile:           true,
			},
			{
				Name: "ONotice__c",
				Query: `SELECT Id, Name, Affixation_Date__c, News_Paper_Eng__c, News_Paper_Vern__c,
					Publication_Date__c, Agreement_Num__c, Vertical__c, CIF_Id__c, CreatedById,
					LastModifiedById, OwnerId, Migrated_to_Mongo__c, SystemModstamp
					FROM ONotice__c
					WHERE Migrated_to_Mongo__c = false`,
				ClassificationField: "Vertical__c",
				Reconcile:           true,
			},
			{
				Name: "ONotice_Details__c",
				Query: `SELECT Id, Name, Notice_Id1__c, Notice_Id1__r.Agreement_Num__c, Notice_Id1__r.Vertical__c,
					Product_Type__c, RecordType.Name, RecordTypeId, Migrated_to_Mongo__c, SystemModstamp
					FROM ONotice_Details__c
					WHERE Migrated_to_Mongo__c = false`,
				ClassificationField: "Notice_Id1__r.Vertical__c",
				Reconcile:           true,
			},
			{
				Name: "OComment_History__c",
				Query: `SELECT Id, Name, Comment_stage__c, ONotice_ID__c, Comments__c, CreatedBy.Name, CreatedDate,
					RecordTypeId, RecordType.Name, ONotice_ID__r.Vertical__c, Migrated_to_Mongo__c, SystemModstamp
					FROM OComment_History__c
					WHERE Migrated_to_Mongo__c = false`,
				ClassificationField: "ONotice_ID__r.Vertical__c",
				Reconcile:           true,
			},
		},
	}
}
