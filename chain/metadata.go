package chain

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"sort"

	"github.com/gosimple/slug"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type relicAttribute struct {
	TraitType string `json:"trait_type"`
	Value     int    `json:"value"`
}

type relicMetadata struct {
	Name       string           `json:"name"`
	RelicType  string           `json:"relicType"`
	Attributes []relicAttribute `json:"attributes"`
}

// RelicMetadataJSON renders the token metadata for a relic with attributes sorted by name.
func RelicMetadataJSON(relicType string, affixes map[string]int) []byte {
	attrs := make([]relicAttribute, 0, len(affixes))
	for _, name := range SortedAffixNames(affixes) {
		attrs = append(attrs, relicAttribute{TraitType: name, Value: affixes[name]})
	}
	body, _ := json.Marshal(relicMetadata{
		Name:       fmt.Sprintf("%s Relic", cases.Title(language.English).String(relicType)),
		RelicType:  relicType,
		Attributes: attrs,
	})
	return body
}

// ContentID is the hex sha256 of body.
func ContentID(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:])
}

// MetadataKey is the object key relic metadata is stored under.
func MetadataKey(relicType, cid string) string {
	return fmt.Sprintf("relics/%s/%s.json", slug.Make(relicType), cid)
}

func SortedAffixNames(affixes map[string]int) []string {
	names := make([]string, 0, len(affixes))
	for name := range affixes {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// affixValues orders magnitudes by affix name for the mint call.
func affixValues(affixes map[string]int) []*big.Int {
	values := make([]*big.Int, 0, len(affixes))
	for _, name := range SortedAffixNames(affixes) {
		values = append(values, big.NewInt(int64(affixes[name])))
	}
	return values
}
