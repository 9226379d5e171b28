package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Schema represents the CS2 item schema as published by CSFloat.
type Schema struct {
	Weapons   map[string]Weapon   `json:"weapons"`
	Stickers  map[string]Sticker  `json:"stickers"`
	Keychains map[string]Keychain `json:"keychains"`
	Agents    map[string]Agent    `json:"agents"`
}

type Weapon struct {
	Name   string           `json:"name"`
	Paints map[string]Paint `json:"paints"`
}

type Paint struct {
	Name  string  `json:"name"`
	Image string  `json:"image"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
}

type Sticker struct {
	MarketHashName string `json:"market_hash_name"`
}

type Keychain struct {
	MarketHashName string `json:"market_hash_name"`
}

type Agent struct {
	MarketHashName string `json:"market_hash_name"`
	Image          string `json:"image"`
}

// Phase maps Doppler/Gamma Doppler paint indexes to their phase name.
var Phase = map[uint32]string{
	418: "Phase 1",
	419: "Phase 2",
	420: "Phase 3",
	421: "Phase 4",
	415: "Ruby",
	416: "Sapphire",
	417: "Black Pearl",
	569: "Phase 1",
	570: "Phase 2",
	571: "Phase 3",
	572: "Phase 4",
	568: "Emerald",
	618: "Phase 2",
	619: "Sapphire",
	617: "Black Pearl",
	852: "Phase 1",
	853: "Phase 2",
	854: "Phase 3",
	855: "Phase 4",
	1119: "Emerald",
	1120: "Phase 1",
	1121: "Phase 2",
	1122: "Phase 3",
	1123: "Phase 4",
}

// PatternNames maps specific pattern seeds to their names for certain skins.
var PatternNames = map[string]map[uint32]string{
	"AK-47 | Case Hardened": {
		661: "Scar Pattern",
		555: "Honorable Mention",
		760: "Golden Booty",
	},
	"Karambit | Case Hardened": {
		387: "Blue Gem",
		601: "Hidden Blue Gem",
	},
}

var CHPatterns map[string]map[string][]int
var FadePercentages map[string]map[string][]int
var MarbleFadePatterns map[string]map[string][]int

var (
	schema     *Schema
	schemaLock sync.RWMutex
)

// LoadSchema fetches the CS2 item schema from CSFloat, falling back to
// the most recent local copy on any failure.
func LoadSchema() error {
	log.Info("loading item schema from csfloat")

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Get("https://csfloat.com/api/v1/schema")
	if err != nil {
		log.WithError(err).Warn("schema fetch failed, falling back to local file")
		return loadSchemaFromFile()
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.WithField("status", resp.StatusCode).Warn("schema api returned non-200, falling back to local file")
		return loadSchemaFromFile()
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		log.WithError(err).Warn("failed to read schema response, falling back to local file")
		return loadSchemaFromFile()
	}

	tempSchema := &Schema{}
	if err := json.Unmarshal(body, tempSchema); err != nil {
		log.WithError(err).Warn("failed to unmarshal schema, falling back to local file")
		return loadSchemaFromFile()
	}
	if len(tempSchema.Stickers) == 0 || len(tempSchema.Keychains) == 0 || len(tempSchema.Weapons) == 0 {
		log.Warn("schema from api is incomplete, falling back to local file")
		return loadSchemaFromFile()
	}

	schemaLock.Lock()
	schema = tempSchema
	schemaLock.Unlock()

	log.WithField("weapons", len(tempSchema.Weapons)).Info("schema loaded")
	saveSchemaToFile(body)
	return nil
}

func loadSchemaFromFile() error {
	latestFile := "static/schema_latest.json"
	if _, err := os.Stat(latestFile); os.IsNotExist(err) {
		files, err := filepath.Glob("static/schema_*.json")
		if err != nil || len(files) == 0 {
			return fmt.Errorf("schema unavailable: no local fallback files found")
		}
		sort.Strings(files)
		latestFile = files[len(files)-1]
	}

	body, err := os.ReadFile(latestFile)
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	tempSchema := &Schema{}
	if err := json.Unmarshal(body, tempSchema); err != nil {
		return fmt.Errorf("unmarshal schema file: %w", err)
	}
	if len(tempSchema.Stickers) == 0 || len(tempSchema.Keychains) == 0 || len(tempSchema.Weapons) == 0 {
		return fmt.Errorf("schema file is incomplete")
	}

	schemaLock.Lock()
	schema = tempSchema
	schemaLock.Unlock()
	log.WithField("source", latestFile).Info("schema loaded from local fallback")
	return nil
}

func saveSchemaToFile(data []byte) {
	if err := os.MkdirAll("static", 0755); err != nil {
		log.WithError(err).Warn("failed to create static directory")
		return
	}

	filename := fmt.Sprintf("static/schema_%s.json", time.Now().Format("20060102_150405"))
	if err := os.WriteFile(filename, data, 0644); err != nil {
		log.WithError(err).Warn("failed to write schema backup")
		return
	}

	latestFile := "static/schema_latest.json"
	if err := os.Remove(latestFile); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("failed to remove old schema symlink")
	}
	if err := os.Symlink(filename, latestFile); err != nil {
		log.WithError(err).Warn("failed to create schema symlink")
	}
}

// LoadPatternFiles loads the Case Hardened / Fade / Marble Fade pattern
// tables used by GetPatternName. Missing files are non-fatal: pattern
// names are decorative enrichment, not required for a usable ItemInfo.
func LoadPatternFiles() error {
	if data, err := loadJSONFile("static/ch-patterns.json"); err == nil {
		m := make(map[string]map[string][]int)
		if err := json.Unmarshal(data, &m); err == nil {
			CHPatterns = m
		}
	}
	if data, err := loadJSONFile("static/fade-percentages.json"); err == nil {
		m := make(map[string]map[string][]int)
		if err := json.Unmarshal(data, &m); err == nil {
			FadePercentages = m
		}
	}
	if data, err := loadJSONFile("static/marble-fade-patterns.json"); err == nil {
		m := make(map[string]map[string][]int)
		if err := json.Unmarshal(data, &m); err == nil {
			MarbleFadePatterns = m
		}
	}
	log.Info("pattern files loaded")
	return nil
}

func loadJSONFile(path string) ([]byte, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("abs path: %w", err)
	}
	return os.ReadFile(absPath)
}

func GetSchema() *Schema {
	schemaLock.RLock()
	defer schemaLock.RUnlock()
	return schema
}

// GetWearName maps a float wear value to its named wear tier per
// SPEC_FULL §4.10.
func GetWearName(wear float64) string {
	switch {
	case wear < 0.07:
		return "Factory New"
	case wear < 0.15:
		return "Minimal Wear"
	case wear < 0.38:
		return "Field-Tested"
	case wear < 0.45:
		return "Well-Worn"
	default:
		return "Battle-Scarred"
	}
}

func GetPhaseName(paintIndex uint32) string {
	return Phase[paintIndex]
}

func GetPatternName(marketHashName string, paintSeed uint32) string {
	if patterns, ok := PatternNames[marketHashName]; ok {
		if name, ok := patterns[paintSeed]; ok {
			return name
		}
	}

	weaponType := getWeaponTypeFromName(marketHashName)
	if weaponType == "" {
		return ""
	}

	if strings.Contains(marketHashName, "Case Hardened") {
		if patterns, ok := CHPatterns[weaponType]; ok {
			for tier, seeds := range patterns {
				if containsInt(seeds, paintSeed) {
					return fmt.Sprintf("%s Blue Gem", tier)
				}
			}
		}
	}
	if strings.Contains(marketHashName, "Marble Fade") {
		if patterns, ok := MarbleFadePatterns[weaponType]; ok {
			for patternName, seeds := range patterns {
				if containsInt(seeds, paintSeed) {
					return patternName
				}
			}
		}
	}
	if strings.Contains(marketHashName, "Fade") {
		if percentages, ok := FadePercentages[weaponType]; ok {
			for percentage, seeds := range percentages {
				if containsInt(seeds, paintSeed) {
					return fmt.Sprintf("%s%% Fade", percentage)
				}
			}
		}
	}
	return ""
}

func containsInt(seeds []int, seed uint32) bool {
	for _, s := range seeds {
		if uint32(s) == seed {
			return true
		}
	}
	return false
}

var weaponTypeByPrefix = map[string]string{
	"★ Karambit":        "karambit",
	"★ M9 Bayonet":      "m9",
	"★ Bayonet":         "bayonet",
	"★ Butterfly Knife": "butterfly",
	"★ Falchion Knife":  "falchion",
	"★ Flip Knife":      "flip",
	"★ Gut Knife":       "gut",
	"★ Huntsman Knife":  "huntsman",
	"★ Shadow Daggers":  "shadow",
	"★ Bowie Knife":     "bowie",
	"★ Ursus Knife":     "ursus",
	"★ Navaja Knife":    "navaja",
	"★ Stiletto Knife":  "stiletto",
	"★ Talon Knife":     "talon",
	"★ Skeleton Knife":  "skeleton",
	"★ Nomad Knife":     "nomad",
	"★ Survival Knife":  "survival",
	"★ Paracord Knife":  "paracord",
	"★ Classic Knife":   "classic",
	"AK-47":             "ak47",
	"AWP":               "awp",
	"Desert Eagle":      "deagle",
	"Glock-18":          "glock",
	"M4A1-S":            "m4a1s",
	"M4A4":              "m4a4",
	"USP-S":             "usp",
}

func getWeaponTypeFromName(marketHashName string) string {
	for prefix, key := range weaponTypeByPrefix {
		if strings.HasPrefix(marketHashName, prefix) {
			return key
		}
	}
	return ""
}

// BuildMarketHashName constructs the canonical market hash name for a
// weapon/paint/quality combination, including Doppler phase suffixes.
func BuildMarketHashName(defIndex, paintIndex, quality uint32, isStatTrak, isSouvenir bool, paintWear float64) string {
	s := GetSchema()
	if s == nil {
		return ""
	}

	weapon, ok := s.Weapons[fmt.Sprintf("%d", defIndex)]
	if !ok {
		return ""
	}

	var parts []string
	if quality == 3 {
		parts = append(parts, "★")
	}
	if isStatTrak {
		parts = append(parts, "StatTrak™")
	} else if isSouvenir {
		parts = append(parts, "Souvenir")
	}
	parts = append(parts, weapon.Name)

	if paintIndex == 0 {
		return strings.Join(parts, " ")
	}
	paint, ok := weapon.Paints[fmt.Sprintf("%d", paintIndex)]
	if !ok {
		return strings.Join(parts, " ")
	}

	phaseName := GetPhaseName(paintIndex)
	if phaseName != "" && paint.Name == "Doppler" {
		parts = append(parts, "| Doppler")
		if paintWear > 0 {
			parts = append(parts, fmt.Sprintf("(%s)", GetWearName(paintWear)))
		}
		parts = append(parts, fmt.Sprintf("- %s", phaseName))
		return strings.Join(parts, " ")
	}

	parts = append(parts, fmt.Sprintf("| %s", paint.Name))
	if paintWear > 0 {
		parts = append(parts, fmt.Sprintf("(%s)", GetWearName(paintWear)))
	}
	return strings.Join(parts, " ")
}

// ApplySchemaEnrichment fills in the best-effort descriptive fields of
// ItemInfo (wear name, pattern, market hash name, phase, min/max float,
// item type). Wear name, phase and item type come from the float,
// paint index and quality alone; market hash name, pattern and min/max
// float come from the in-memory schema snapshot. It never fails: a
// missing schema simply leaves the schema-derived fields blank, since the
// canonical protobuf-derived fields were already delivered by
// DecodeItemInfo.
func ApplySchemaEnrichment(info *ItemInfo) {
	if info == nil {
		return
	}
	info.WearName = GetWearName(info.FloatValue)

	s := GetSchema()
	marketHashName := BuildMarketHashName(info.DefIndex, info.PaintIndex, info.Quality, info.IsStatTrak, info.IsSouvenir, info.FloatValue)
	info.MarketHashName = marketHashName
	info.Phase = GetPhaseName(info.PaintIndex)
	if marketHashName != "" {
		info.Pattern = GetPatternName(marketHashName, info.PaintSeed)
	}
	if info.Quality == 3 {
		info.ItemType = "knife"
	} else if info.KilleaterScoreType > 0 {
		info.ItemType = "stattrak"
	} else {
		info.ItemType = "normal"
	}

	if s == nil {
		return
	}
	weapon, ok := s.Weapons[fmt.Sprintf("%d", info.DefIndex)]
	if !ok {
		return
	}
	if paint, ok := weapon.Paints[fmt.Sprintf("%d", info.PaintIndex)]; ok {
		info.MinFloat = paint.Min
		info.MaxFloat = paint.Max
	}
}

// StartSchemaUpdater loads the schema and pattern tables once at
// startup, then refreshes the schema every 24 hours.
func StartSchemaUpdater() {
	go func() {
		if err := LoadSchema(); err != nil {
			log.WithError(err).Error("initial schema load failed")
		}
		if err := LoadPatternFiles(); err != nil {
			log.WithError(err).Warn("pattern file load failed")
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			if err := LoadSchema(); err != nil {
				log.WithError(err).Error("scheduled schema refresh failed")
			}
		}
	}()
}
