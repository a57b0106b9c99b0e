package transfer

import (
	"strconv"
	"strings"

	"crmbridge/migrator/datalake/model"
)

// dmsDateLayout is the DMS createdDate format (DD/MM/YYYY).
const dmsDateLayout = "02/01/2006"

// MetadataDefaults are the fixed descriptive fields sent with every file.
type MetadataDefaults struct {
	Vertical         string
	SourceSys        string
	Module           string
	LatLong          string
	ImageSrc         string
	ImageSrcID       string
	ImageCategory    string
	ImageSubCategory string
	Stage            string
	Status           string
	BranchCode       string
	Branch           string
	KeyID            string
}

// DefaultMetadata returns the values the DMS integration was set up with.
func DefaultMetadata() MetadataDefaults {
	return MetadataDefaults{
		Vertical:         "VF_Gallop",
		SourceSys:        "Gallop",
		Module:           "Notice Letters",
		LatLong:          "242-12344",
		ImageSrc:         "Gallop",
		ImageSrcID:       "01",
		ImageCategory:    "0",
		ImageSubCategory: "0",
		Stage:            "FI",
		Status:           "1",
		BranchCode:       "1208",
		Branch:           "HO",
		KeyID:            "agreementNo",
	}
}

// Metadata is the JSON document sent as the "data" part of an upload.
type Metadata struct {
	Vertical         string   `json:"vertical"`
	User             string   `json:"user"`
	UniqueID         string   `json:"uniqueId"`
	Status           string   `json:"status"`
	Stage            string   `json:"stage"`
	SourceSys        string   `json:"sourceSys"`
	Size             string   `json:"size"`
	Module           string   `json:"module"`
	LatLong          string   `json:"latLong"`
	KeyValue         []string `json:"keyValue"`
	KeyID            []string `json:"keyId"`
	ImageSubCategory string   `json:"imageSubCategory"`
	ImageSrcID       string   `json:"imageSrcId"`
	ImageSrc         string   `json:"imageSrc"`
	ImageID          string   `json:"imageId"`
	ImageCategory    string   `json:"imageCategory"`
	Format           string   `json:"format"`
	FileName         string   `json:"fileName"`
	CreatedDate      string   `json:"createdDate"`
	CreatedBy        string   `json:"createdBy"`
	CheckSum         string   `json:"checkSum"`
	BranchCode       string   `json:"branchCode"`
	Branch           string   `json:"branch"`
	AppID            *string  `json:"appId"`
}

// BuildMetadata combines the defaults with the per-file fields. The parent's
// classification, when known, replaces the configured vertical.
func BuildMetadata(d MetadataDefaults, att model.Attachment, size int64, checksum string) Metadata {
	vertical := d.Vertical
	if c := strings.TrimSpace(att.Classification); c != "" {
		vertical = c
	}

	return Metadata{
		Vertical:         vertical,
		User:             att.CreatedBy,
		UniqueID:         att.ID,
		Status:           d.Status,
		Stage:            d.Stage,
		SourceSys:        d.SourceSys,
		Size:             strconv.FormatInt(size, 10),
		Module:           d.Module,
		LatLong:          d.LatLong,
		KeyValue:         []string{att.Title},
		KeyID:            []string{d.KeyID},
		ImageSubCategory: d.ImageSubCategory,
		ImageSrcID:       d.ImageSrcID,
		ImageSrc:         d.ImageSrc,
		ImageID:          att.ContentDocumentID,
		ImageCategory:    d.ImageCategory,
		Format:           strings.ToLower(att.FileExtension),
		FileName:         att.FileName(),
		CreatedDate:      att.CreatedDate.Format(dmsDateLayout),
		CreatedBy:        att.CreatedBy,
		CheckSum:         checksum,
		BranchCode:       d.BranchCode,
		Branch:           d.Branch,
	}
}
