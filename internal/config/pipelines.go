package config

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrUnknownPipeline = errors.New("unknown pipeline")
	ErrUnknownMesa     = errors.New("unknown mesa")
)

// PipelineConfig binds a CRM pipeline to its staging ("deletion") and
// confirmed ("target") stages and to the mesa whose registries and partner
// credentials it uses.
type PipelineConfig struct {
	Name            string
	TargetStageID   int64
	DeletionStageID int64
	Mesa            string
}

// OriginMapping routes an origin deal living in PipelineID to StageID.
type OriginMapping struct {
	Mesa       string
	PipelineID int64
	StageID    int64
}

var pipelines = []PipelineConfig{
	{Name: "BT Blue Pipeline", TargetStageID: 110351686, DeletionStageID: 110351653, Mesa: "btblue"},
	{Name: "2B Ativos Pipeline", TargetStageID: 110351791, DeletionStageID: 110351790, Mesa: "2bativos"},
	{Name: "BBMD Pipeline", TargetStageID: 110351793, DeletionStageID: 110351792, Mesa: "bbmd"},
	{Name: "Pipeline de Teste", TargetStageID: 110353005, DeletionStageID: 110353004, Mesa: "test"},
}

var originMappings = []OriginMapping{
	{Mesa: "Mesa JPA", PipelineID: 110065217, StageID: 110352811},
	{Mesa: "Mesa 2B", PipelineID: 110066163, StageID: 110352813},
	{Mesa: "Mesa Yasmin", PipelineID: 110066161, StageID: 110352810},
	{Mesa: "Mesa BBMD", PipelineID: 110066162, StageID: 110352812},
	{Mesa: "Mesa Elson", PipelineID: 110066424, StageID: 110352814},
}

// The test pipeline authenticates with the BT Blue account.
var credentialPrefixes = map[string]string{
	"btblue":   "PARCEIROS_BT_BLUE",
	"2bativos": "PARCEIROS_2B_ATIVOS",
	"bbmd":     "PARCEIROS_BBMD",
	"test":     "PARCEIROS_BT_BLUE",
}

func LookupPipeline(name string) (PipelineConfig, error) {
	want := strings.TrimSpace(name)
	for _, p := range pipelines {
		if strings.EqualFold(p.Name, want) {
			return p, nil
		}
	}
	return PipelineConfig{}, fmt.Errorf("%w: %q (available: %s)", ErrUnknownPipeline, name, strings.Join(PipelineNames(), ", "))
}

// PipelineForMesa returns the first pipeline owned by mesa.
func PipelineForMesa(mesa string) (PipelineConfig, error) {
	key := strings.ToLower(strings.TrimSpace(mesa))
	for _, p := range pipelines {
		if p.Mesa == key {
			return p, nil
		}
	}
	return PipelineConfig{}, fmt.Errorf("%w: %q", ErrUnknownMesa, mesa)
}

func PipelineNames() []string {
	out := make([]string, 0, len(pipelines))
	for _, p := range pipelines {
		out = append(out, p.Name)
	}
	return out
}

// OriginMappings returns a copy of the origin routing table.
func OriginMappings() []OriginMapping {
	out := make([]OriginMapping, len(originMappings))
	copy(out, originMappings)
	return out
}

// Mesas lists the business units that have partner credentials, excluding
// the test pipeline alias.
func Mesas() []string {
	out := make([]string, 0, len(credentialPrefixes))
	for mesa := range credentialPrefixes {
		if mesa == "test" {
			continue
		}
		out = append(out, mesa)
	}
	sort.Strings(out)
	return out
}

func NormalizeMesa(mesa string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(mesa))
	if _, ok := credentialPrefixes[key]; !ok {
		return "", fmt.Errorf("%w: %q (available: %s)", ErrUnknownMesa, mesa, strings.Join(Mesas(), ", "))
	}
	return key, nil
}
