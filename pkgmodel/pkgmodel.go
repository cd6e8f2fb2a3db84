// Package pkgmodel describes a lending institution's document set: a
// Category owns Products, Products own Programs, and both Products and
// Programs reserve ExpectedDocument slots that raw documents are later
// bound to. The model is validated at creation time, before any
// document bytes exist.
package pkgmodel

import (
	"fmt"

	"github.com/google/uuid"
)

// Category is the top business domain of a package.
type Category string

const (
	CategoryNQM  Category = "NQM"
	CategoryRTL  Category = "RTL"
	CategorySBC  Category = "SBC"
	CategoryCONV Category = "CONV"
)

// KnownCategory reports whether c is one of the four supported domains.
func KnownCategory(c Category) bool {
	switch c {
	case CategoryNQM, CategoryRTL, CategorySBC, CategoryCONV:
		return true
	}
	return false
}

// Status is the lifecycle state of a package.
type Status string

const (
	StatusDraft    Status = "DRAFT"
	StatusActive   Status = "ACTIVE"
	StatusArchived Status = "ARCHIVED"
)

// DocumentType classifies an expected document slot.
type DocumentType string

const (
	DocGuidelines    DocumentType = "Guidelines"
	DocMatrix        DocumentType = "Matrix"
	DocRateSheet     DocumentType = "RateSheet"
	DocKnowledgeBase DocumentType = "KnowledgeBase"
)

// UploadStatus tracks a slot's binding lifecycle. Terminal states after
// pipeline processing are completed, failed, and empty; "processing"
// never survives a pipeline return.
type UploadStatus string

const (
	UploadEmpty      UploadStatus = "empty"
	UploadUploaded   UploadStatus = "uploaded"
	UploadProcessing UploadStatus = "processing"
	UploadCompleted  UploadStatus = "completed"
	UploadFailed     UploadStatus = "failed"
)

// Package is the root of the three-tier hierarchy.
type Package struct {
	ID       string     `json:"id"`
	Category Category   `json:"category"`
	Status   Status     `json:"status"`
	Version  Version    `json:"version"`
	Products []*Product `json:"products"`

	history []snapshot
}

// Product is a lending offering inside a Category. Guidelines attach at
// this level.
type Product struct {
	ID        string              `json:"id"`
	PackageID string              `json:"package_id"`
	Name      string              `json:"name"`
	Priority  int                 `json:"priority"`
	Programs  []*Program          `json:"programs"`
	Slots     []*ExpectedDocument `json:"slots"`
}

// Program is a variant inside a Product. Matrix documents attach here.
type Program struct {
	ID        string              `json:"id"`
	ProductID string              `json:"product_id"`
	Code      string              `json:"code"`
	Slots     []*ExpectedDocument `json:"slots"`
}

// ExpectedDocument reserves a place for a document of a known type.
// Exactly one of ProductID / ProgramID is set: a slot belongs to one
// tier, never both.
type ExpectedDocument struct {
	SlotID       string       `json:"slot_id"`
	ProductID    string       `json:"product_id,omitempty"`
	ProgramID    string       `json:"program_id,omitempty"`
	DocumentType DocumentType `json:"document_type"`
	Required     bool         `json:"required"`
	UploadStatus UploadStatus `json:"upload_status"`
	AcceptedMIME []string     `json:"accepted_mime"`
	MaxSizeBytes int64        `json:"max_size_bytes"`

	// DocumentRef is the external raw-document reference once bound.
	DocumentRef string `json:"document_ref,omitempty"`
}

// ProductSpec describes a product in a CreatePackage call.
type ProductSpec struct {
	Name     string
	Priority int
	// ExtraSlots adds slots beyond the mandatory Guidelines slot.
	ExtraSlots []SlotSpec
	Programs   []ProgramSpec
}

// ProgramSpec describes a program in a CreatePackage call.
type ProgramSpec struct {
	Code string
	// ExtraSlots adds slots beyond the mandatory Matrix slot.
	ExtraSlots []SlotSpec
}

// SlotSpec describes an additional expected-document slot.
type SlotSpec struct {
	DocumentType DocumentType
	Required     bool
	AcceptedMIME []string
	MaxSizeBytes int64
}

const defaultMaxSizeBytes = 64 << 20

// CreatePackage validates and builds a package skeleton. Every Product
// receives a Guidelines slot and every Program a Matrix slot; extra
// slots come from the product and program specs. Unknown categories and
// structurally invalid product definitions are rejected before any IDs
// are allocated.
func CreatePackage(category Category, products []ProductSpec) (*Package, error) {
	if !KnownCategory(category) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, category)
	}
	if len(products) == 0 {
		return nil, fmt.Errorf("%w: package has no products", ErrInvalidPackage)
	}
	for _, ps := range products {
		if ps.Name == "" {
			return nil, fmt.Errorf("%w: product missing name", ErrInvalidPackage)
		}
		for _, ss := range ps.ExtraSlots {
			if ss.DocumentType == DocMatrix {
				return nil, fmt.Errorf("%w: product %q: Matrix slots attach at program level", ErrInvalidPackage, ps.Name)
			}
		}
		for _, gs := range ps.Programs {
			if gs.Code == "" {
				return nil, fmt.Errorf("%w: product %q has a program without a code", ErrInvalidPackage, ps.Name)
			}
			for _, ss := range gs.ExtraSlots {
				if ss.DocumentType == DocGuidelines {
					return nil, fmt.Errorf("%w: program %q: Guidelines slots attach at product level", ErrInvalidPackage, gs.Code)
				}
			}
		}
	}

	pkg := &Package{
		ID:       uuid.NewString(),
		Category: category,
		Status:   StatusDraft,
		Version:  Version{Major: 1},
	}
	for _, ps := range products {
		prod := &Product{
			ID:        uuid.NewString(),
			PackageID: pkg.ID,
			Name:      ps.Name,
			Priority:  ps.Priority,
		}
		prod.Slots = append(prod.Slots, newSlot(SlotSpec{
			DocumentType: DocGuidelines,
			Required:     true,
			AcceptedMIME: []string{"application/pdf", "text/plain"},
		}, prod.ID, ""))
		for _, ss := range ps.ExtraSlots {
			prod.Slots = append(prod.Slots, newSlot(ss, prod.ID, ""))
		}
		for _, gs := range ps.Programs {
			prog := &Program{
				ID:        uuid.NewString(),
				ProductID: prod.ID,
				Code:      gs.Code,
			}
			prog.Slots = append(prog.Slots, newSlot(SlotSpec{
				DocumentType: DocMatrix,
				Required:     true,
				AcceptedMIME: []string{"application/pdf", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"},
			}, "", prog.ID))
			for _, ss := range gs.ExtraSlots {
				prog.Slots = append(prog.Slots, newSlot(ss, "", prog.ID))
			}
			prod.Programs = append(prod.Programs, prog)
		}
		pkg.Products = append(pkg.Products, prod)
	}
	return pkg, nil
}

func newSlot(spec SlotSpec, productID, programID string) *ExpectedDocument {
	maxSize := spec.MaxSizeBytes
	if maxSize == 0 {
		maxSize = defaultMaxSizeBytes
	}
	return &ExpectedDocument{
		SlotID:       uuid.NewString(),
		ProductID:    productID,
		ProgramID:    programID,
		DocumentType: spec.DocumentType,
		Required:     spec.Required,
		UploadStatus: UploadEmpty,
		AcceptedMIME: spec.AcceptedMIME,
		MaxSizeBytes: maxSize,
	}
}

// FindSlot locates a slot by ID anywhere in the package.
func (p *Package) FindSlot(slotID string) (*ExpectedDocument, bool) {
	for _, prod := range p.Products {
		for _, s := range prod.Slots {
			if s.SlotID == slotID {
				return s, true
			}
		}
		for _, prog := range prod.Programs {
			for _, s := range prog.Slots {
				if s.SlotID == slotID {
					return s, true
				}
			}
		}
	}
	return nil, false
}

// BindDocument attaches a raw document reference to a slot. The
// detected type must agree with the slot's declared type.
func (p *Package) BindDocument(slotID, rawDocumentRef string, detectedType DocumentType) (*ExpectedDocument, error) {
	slot, ok := p.FindSlot(slotID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	if detectedType != slot.DocumentType {
		return nil, fmt.Errorf("%w: slot expects %s, detected %s", ErrSlotTypeMismatch, slot.DocumentType, detectedType)
	}
	slot.DocumentRef = rawDocumentRef
	slot.UploadStatus = UploadUploaded
	return slot, nil
}

// SetSlotStatus transitions a slot's upload status.
func (p *Package) SetSlotStatus(slotID string, status UploadStatus) error {
	slot, ok := p.FindSlot(slotID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrSlotNotFound, slotID)
	}
	slot.UploadStatus = status
	return nil
}

// AllSlots returns every slot in the package, products first.
func (p *Package) AllSlots() []*ExpectedDocument {
	var out []*ExpectedDocument
	for _, prod := range p.Products {
		out = append(out, prod.Slots...)
		for _, prog := range prod.Programs {
			out = append(out, prog.Slots...)
		}
	}
	return out
}
