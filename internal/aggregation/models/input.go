package models

// IssuerRecord is one row of the issuer master table.
type IssuerRecord struct {
	ID            EntityID `json:"entity_id" yaml:"entity_id"`
	Name          string   `json:"name" yaml:"name"`
	Domicile      Country  `json:"domicile" yaml:"domicile"`
	AssocParentID EntityID `json:"assoc_parent_id" yaml:"assoc_parent_id"`
	AssocCountry  Country  `json:"assoc_country" yaml:"assoc_country"`
	ModalCountry  Country  `json:"modal_country" yaml:"modal_country"`
}

// RawAttestation is one unflattened row of a source table. Country is the
// country the source reports for ParentID.
type RawAttestation struct {
	ChildID  EntityID `json:"entity_id" yaml:"entity_id"`
	ParentID EntityID `json:"parent_id" yaml:"parent_id"`
	Country  Country  `json:"country" yaml:"country"`
}

// NameRecord is one row of a supplementary entity-name table.
type NameRecord struct {
	ID   EntityID `json:"entity_id" yaml:"entity_id"`
	Name string   `json:"name" yaml:"name"`
}

// Dataset is the complete read-only input of one run.
type Dataset struct {
	Issuers      []IssuerRecord              `yaml:"issuers"`
	Attestations map[Source][]RawAttestation `yaml:"attestations"`
	Names        map[Source][]NameRecord     `yaml:"names"`
}

// Normalize trims and upper-cases every id and country code in place and
// lower-cases source keys.
func (d *Dataset) Normalize() {
	for i, r := range d.Issuers {
		d.Issuers[i] = IssuerRecord{
			ID:            ParseEntityID(string(r.ID)),
			Name:          r.Name,
			Domicile:      ParseCountry(string(r.Domicile)),
			AssocParentID: ParseEntityID(string(r.AssocParentID)),
			AssocCountry:  ParseCountry(string(r.AssocCountry)),
			ModalCountry:  ParseCountry(string(r.ModalCountry)),
		}
	}
	if d.Attestations != nil {
		attest := make(map[Source][]RawAttestation, len(d.Attestations))
		for src, rows := range d.Attestations {
			key := ParseSource(string(src))
			for _, r := range rows {
				attest[key] = append(attest[key], RawAttestation{
					ChildID:  ParseEntityID(string(r.ChildID)),
					ParentID: ParseEntityID(string(r.ParentID)),
					Country:  ParseCountry(string(r.Country)),
				})
			}
		}
		d.Attestations = attest
	}
	if d.Names != nil {
		names := make(map[Source][]NameRecord, len(d.Names))
		for src, rows := range d.Names {
			key := ParseSource(string(src))
			for _, r := range rows {
				names[key] = append(names[key], NameRecord{ID: ParseEntityID(string(r.ID)), Name: r.Name})
			}
		}
		d.Names = names
	}
}

// Clone returns a deep copy of d.
func (d *Dataset) Clone() *Dataset {
	out := &Dataset{Issuers: append([]IssuerRecord(nil), d.Issuers...)}
	if d.Attestations != nil {
		out.Attestations = make(map[Source][]RawAttestation, len(d.Attestations))
		for src, rows := range d.Attestations {
			out.Attestations[src] = append([]RawAttestation(nil), rows...)
		}
	}
	if d.Names != nil {
		out.Names = make(map[Source][]NameRecord, len(d.Names))
		for src, rows := range d.Names {
			out.Names[src] = append([]NameRecord(nil), rows...)
		}
	}
	return out
}
