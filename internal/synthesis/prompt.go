// Package synthesis turns retrieved program fragments into a summary and a
// short list of distinct positions backed by verbatim quotes.
package synthesis

import (
	"fmt"
	"strings"

	"zweefhulp/internal/models"
)

// DefaultMaxPositions caps the number of positions per party.
const DefaultMaxPositions = 5

// SummaryHeading is the heading the model is asked to put above the summary.
const SummaryHeading = "Samenvatting"

// BuildContext renders chunks as numbered fragments with their page.
func BuildContext(chunks []models.ScoredChunk) string {
	var b strings.Builder
	for i, c := range chunks {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "[Fragment %d, Page %d]: %s", i+1, c.PageNumber, strings.TrimSpace(c.Content))
	}
	return b.String()
}

// BuildPrompt renders the generation prompt for one party. It has no side
// effects and depends only on its arguments.
func BuildPrompt(query, partyName string, chunks []models.ScoredChunk, maxPositions int) string {
	if maxPositions <= 0 {
		maxPositions = DefaultMaxPositions
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Je bent een expert in het analyseren van politieke verkiezingsprogramma's. Je bent zeer selectief en kritisch.\n\n")
	fmt.Fprintf(&b, "Hieronder staan fragmenten uit het verkiezingsprogramma van %s. De zoekopdracht is: %q\n\n", partyName, query)
	b.WriteString(BuildContext(chunks))
	b.WriteString("\n\n")

	fmt.Fprintf(&b, `OPDRACHT:
1. Beoordeel elk fragment op echte relevantie voor %[1]q. Laat vage of algemene uitspraken weg.
2. Schrijf eerst een korte samenvatting (2 tot 4 zinnen) van de houding van %[2]s en de concrete voorstellen.
3. Geef daarna maximaal %[3]d DUIDELIJK VERSCHILLENDE standpunten. Als fragmenten hetzelfde zeggen, groepeer ze onder één standpunt.

STRUCTUUR VAN ELK STANDPUNT:
- Kop: het concrete standpunt, maximaal 8 woorden, geformuleerd als positie of voorstel (niet "Beleid voor wonen" maar "100.000 sociale huurwoningen per jaar bouwen").
- Toelichting: 2 tot 3 zinnen die uitleggen waarom de partij dit standpunt inneemt en hoe het samenhangt met %[1]q.
- Citaten: een opsomming van letterlijke citaten uit de fragmenten, elk op een eigen regel in de vorm - "exacte tekst" (page N).

STRIKTE REGELS:
- Citaten moeten letterlijk overeenkomen met de brontekst. Niet parafraseren.
- Gebruik het paginanummer van het fragment waaruit het citaat komt.
- Geen dubbele citaten, ook niet verspreid over verschillende standpunten.
- Bij twijfel: weglaten. Als niets relevant is, geef dan alleen de samenvatting.

ANTWOORDFORMAAT (markdown, geen andere tekst):
## %[4]s
<samenvatting>

## <standpunt>
<toelichting>
- "<letterlijk citaat>" (page <nummer>)
- "<letterlijk citaat>" (page <nummer>)
`, query, partyName, maxPositions, SummaryHeading)

	return b.String()
}
