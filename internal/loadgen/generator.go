package loadgen

import (
	"fmt"
	"math/rand/v2"
	"strings"

	"github.com/okian/leadrank/internal/domain/model"
)

// Sample pools for synthetic leads.
var (
	firstNames = []string{
		"Sarah", "James", "Emily", "Michael", "Lisa", "David", "Maria",
		"Robert", "Jennifer", "Thomas", "Jessica", "Daniel", "Amanda",
		"Christopher", "Michelle", "Matthew", "Susan", "Andrew", "Karen",
	}
	lastNames = []string{
		"Mitchell", "Chen", "Rodriguez", "Kumar", "Anderson", "Park",
		"Garcia", "Wilson", "Lee", "Brown", "Taylor", "Martinez",
		"Johnson", "Smith", "Williams", "Davis", "Miller", "Jones",
	}
	titles = []string{
		"Director of Toxicology", "Head of Preclinical Safety", "Principal Scientist",
		"VP Safety Assessment", "Senior Scientist - Hepatotoxicity", "Lead Toxicologist",
		"Director of Safety Sciences", "Research Scientist II", "Associate Director",
		"Safety Pharmacology Lead", "Senior Research Associate", "Staff Scientist",
		"Group Leader - DMPK", "Principal Investigator",
	}
	companies = []string{
		"Moderna Therapeutics", "Vertex Pharmaceuticals", "BioMarin Pharmaceutical",
		"Alnylam Pharmaceuticals", "Ginkgo Bioworks", "Beam Therapeutics",
		"Editas Medicine", "Intellia Therapeutics", "Biogen", "Takeda", "Novartis",
		"Pfizer", "Merck", "GSK", "AstraZeneca", "Regeneron", "Amgen", "Roche",
	}
	locations = []string{
		"Cambridge, MA", "Boston, MA", "San Francisco, CA", "South San Francisco, CA",
		"San Diego, CA", "New York, NY", "New Jersey", "Seattle, WA",
		"Basel, Switzerland", "Oxford, UK", "Cambridge, UK", "London, UK",
		"Remote - Colorado", "Remote - Texas", "Chicago, IL", "Philadelphia, PA",
	}
	fundingStages = []string{"Seed", "Series A", "Series B", "Series C", "Public", "IPO", "Private"}
	matureFunding = []string{"Series B", "Series C", "Public"}
	publications  = []string{
		"Novel 3D hepatic models for DILI assessment",
		"Drug-induced liver injury prediction using spheroids",
		"Advanced in vitro toxicity testing methods",
		"Liver organoid applications in drug discovery",
		"NAMs for hepatotoxicity screening",
		"Organ-on-chip technology in drug development",
	}
)

// Share of generated leads with a recent publication, and of leads forced
// into a mature funding stage.
const (
	publicationRate    = 0.6
	matureFundingRate  = 0.7
	firstPublishedYear = 2022
	publishedYearSpan  = 3
)

// Generator produces synthetic lead drafts. It is not safe for concurrent use.
type Generator struct {
	rng *rand.Rand
}

// NewGenerator returns a generator; the same seed yields the same leads.
func NewGenerator(seed uint64) *Generator {
	return &Generator{rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

func (g *Generator) pick(pool []string) string {
	return pool[g.rng.IntN(len(pool))]
}

// Lead returns one draft.
func (g *Generator) Lead() model.LeadDraft {
	attrs := model.Attributes{
		Title:          g.pick(titles),
		Company:        g.pick(companies),
		Location:       g.pick(locations),
		CompanyFunding: g.pick(fundingStages),
	}
	if g.rng.Float64() < matureFundingRate {
		attrs.CompanyFunding = g.pick(matureFunding)
	}
	if g.rng.Float64() < publicationRate {
		attrs.RecentPublication = true
		attrs.PublicationYear = firstPublishedYear + g.rng.IntN(publishedYearSpan)
		attrs.PublicationTitle = g.pick(publications)
	}
	return model.LeadDraft{
		Name:       fmt.Sprintf("Dr. %s %s", g.pick(firstNames), g.pick(lastNames)),
		Attributes: attrs,
	}
}

// Imports splits n leads per owner into import requests of at most
// batchSize leads. Import IDs are deterministic within a run.
func (g *Generator) Imports(runID string, owners []string, n, batchSize int) []Import {
	if batchSize <= 0 {
		batchSize = n
	}
	var out []Import
	for _, owner := range owners {
		for start, batch := 0, 0; start < n; start, batch = start+batchSize, batch+1 {
			size := min(batchSize, n-start)
			leads := make([]model.LeadDraft, size)
			for i := range leads {
				leads[i] = g.Lead()
			}
			out = append(out, Import{
				Owner: owner,
				ID:    strings.Join([]string{runID, owner, fmt.Sprint(batch)}, "-"),
				Leads: leads,
				Score: true,
			})
		}
	}
	return out
}

// OwnerIDs returns n owner names for a run.
func OwnerIDs(runID string, n int) []string {
	owners := make([]string, n)
	for i := range owners {
		owners[i] = fmt.Sprintf("loadgen-%s-%d", runID, i)
	}
	return owners
}
