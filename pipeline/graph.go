package pipeline

import (
	"github.com/teranos/reposcout/errors"
)

// StageName identifies one stage of the fixed graph.
type StageName string

// The stages, in topological order.
const (
	QueryRewrite       StageName = "query-rewrite"
	HardwareExtract    StageName = "hardware-extract"
	Ingest             StageName = "ingest"
	DenseRetrieve      StageName = "dense-retrieve"
	Rerank             StageName = "rerank"
	ThresholdFilter    StageName = "threshold-filter"
	DependencyAnalysis StageName = "dependency-analysis"
	ActivityAnalysis   StageName = "activity-analysis"
	DecisionMaker      StageName = "decision-maker"
	QualityAnalysis    StageName = "quality-analysis"
	Merge              StageName = "merge"
	Rank               StageName = "rank"
	Present            StageName = "present"
)

// Slot names one candidate collection at a stage boundary.
type Slot string

const (
	SlotIngested     Slot = "ingested"
	SlotRetrieved    Slot = "retrieved"
	SlotReranked     Slot = "reranked"
	SlotFiltered     Slot = "filtered"
	SlotDependencies Slot = "dependencies"
	SlotActivity     Slot = "activity"
	SlotQuality      Slot = "quality"
	SlotMerged       Slot = "merged"
	SlotRanked       Slot = "ranked"
)

// Scalar names a non-collection value a stage owns.
type Scalar string

const (
	ScalarQuery        Scalar = "query"
	ScalarHardware     Scalar = "hardware"
	ScalarDecision     Scalar = "run_code_analysis"
	ScalarPresentation Scalar = "presentation"
)

// Kind is the contract the engine checks a stage's output against.
type Kind int

const (
	// KindScalar stages write a Scalar, never a collection.
	KindScalar Kind = iota
	// KindSource stages produce a fresh collection.
	KindSource
	// KindSelect stages keep a subset of From in any order (top-K).
	KindSelect
	// KindFilter stages keep a subset of From in its original order.
	KindFilter
	// KindMap stages annotate From: same candidates, same order.
	KindMap
	// KindReorder stages permute From.
	KindReorder
)

func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSource:
		return "source"
	case KindSelect:
		return "select"
	case KindFilter:
		return "filter"
	case KindMap:
		return "map"
	case KindReorder:
		return "reorder"
	}
	return "unknown"
}

// Spec declares one stage: its predecessors, what it writes and the
// contract its output must satisfy.
type Spec struct {
	Name     StageName
	After    []StageName
	Kind     Kind
	From     Slot   // collection the output is checked against
	Writes   Slot   // collection stages
	Scalar   Scalar // scalar stages
	Required bool   // an empty output aborts the run
}

// Graph returns the fixed pipeline topology:
//
//	query-rewrite -> hardware-extract -> ingest -> dense-retrieve -> rerank -> threshold-filter
//	threshold-filter -> {dependency-analysis, activity-analysis, decision-maker}
//	{dependency-analysis, decision-maker} -> quality-analysis
//	{activity-analysis, quality-analysis} -> merge
//	merge -> rank -> present
func Graph() []Spec {
	return []Spec{
		{Name: QueryRewrite, Kind: KindScalar, Scalar: ScalarQuery},
		{Name: HardwareExtract, After: []StageName{QueryRewrite}, Kind: KindScalar, Scalar: ScalarHardware},
		{Name: Ingest, After: []StageName{HardwareExtract}, Kind: KindSource, Writes: SlotIngested, Required: true},
		{Name: DenseRetrieve, After: []StageName{Ingest}, Kind: KindSelect, From: SlotIngested, Writes: SlotRetrieved},
		{Name: Rerank, After: []StageName{DenseRetrieve}, Kind: KindSelect, From: SlotRetrieved, Writes: SlotReranked},
		{Name: ThresholdFilter, After: []StageName{Rerank}, Kind: KindFilter, From: SlotReranked, Writes: SlotFiltered},
		{Name: DependencyAnalysis, After: []StageName{ThresholdFilter}, Kind: KindFilter, From: SlotFiltered, Writes: SlotDependencies},
		{Name: ActivityAnalysis, After: []StageName{ThresholdFilter}, Kind: KindMap, From: SlotFiltered, Writes: SlotActivity},
		{Name: DecisionMaker, After: []StageName{ThresholdFilter}, Kind: KindScalar, Scalar: ScalarDecision},
		{Name: QualityAnalysis, After: []StageName{DependencyAnalysis, DecisionMaker}, Kind: KindMap, From: SlotDependencies, Writes: SlotQuality},
		{Name: Merge, After: []StageName{ActivityAnalysis, QualityAnalysis}, Kind: KindMap, From: SlotQuality, Writes: SlotMerged},
		{Name: Rank, After: []StageName{Merge}, Kind: KindReorder, From: SlotMerged, Writes: SlotRanked},
		{Name: Present, After: []StageName{Rank}, Kind: KindScalar, Scalar: ScalarPresentation},
	}
}

// compiled is a validated graph with lookup tables.
type compiled struct {
	specs      []Spec
	byName     map[StageName]Spec
	dependents map[StageName][]StageName
	ancestors  map[StageName]map[StageName]bool
}

func compile(specs []Spec) (*compiled, error) {
	g := &compiled{
		specs:      specs,
		byName:     make(map[StageName]Spec, len(specs)),
		dependents: make(map[StageName][]StageName),
		ancestors:  make(map[StageName]map[StageName]bool),
	}
	writers := make(map[Slot]StageName)
	for _, s := range specs {
		if _, dup := g.byName[s.Name]; dup {
			return nil, errors.Newf("stage %q declared twice", s.Name)
		}
		g.byName[s.Name] = s
		if s.Writes != "" {
			if other, taken := writers[s.Writes]; taken {
				return nil, errors.Newf("stages %q and %q both write slot %q", other, s.Name, s.Writes)
			}
			writers[s.Writes] = s.Name
		}
	}
	for _, s := range specs {
		for _, dep := range s.After {
			if _, ok := g.byName[dep]; !ok {
				return nil, errors.Newf("stage %q depends on unknown stage %q", s.Name, dep)
			}
			g.dependents[dep] = append(g.dependents[dep], s.Name)
		}
	}

	// depth-first ancestor sets; a back edge is a cycle
	const (
		unvisited = iota
		visiting
		visited
	)
	state := make(map[StageName]int, len(specs))
	var visit func(StageName) error
	visit = func(n StageName) error {
		switch state[n] {
		case visiting:
			return errors.Newf("stage graph has a cycle through %q", n)
		case visited:
			return nil
		}
		state[n] = visiting
		anc := make(map[StageName]bool)
		for _, dep := range g.byName[n].After {
			if err := visit(dep); err != nil {
				return err
			}
			anc[dep] = true
			for a := range g.ancestors[dep] {
				anc[a] = true
			}
		}
		g.ancestors[n] = anc
		state[n] = visited
		return nil
	}
	for _, s := range specs {
		if err := visit(s.Name); err != nil {
			return nil, err
		}
	}

	// a checked stage must be able to see the slot it is checked against
	for _, s := range specs {
		if s.From == "" {
			continue
		}
		writer, ok := writers[s.From]
		if !ok || !g.ancestors[s.Name][writer] {
			return nil, errors.Newf("stage %q reads slot %q which no predecessor writes", s.Name, s.From)
		}
	}
	return g, nil
}
