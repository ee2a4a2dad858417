package classify

import (
	"hash/fnv"
	"strings"
)

type keywordRule struct {
	keywords     []string
	descriptions []string
}

var nameRules = []keywordRule{
	{
		keywords: []string{"farm", "berry", "berries", "orchard"},
		descriptions: []string{
			"Family farm offering seasonal picking and fresh local produce",
			"Working farm where visitors pick their own fruit in season",
		},
	},
	{
		keywords: []string{"market"},
		descriptions: []string{
			"Bustling market with local vendors, fresh food and crafts",
			"Lively market showcasing regional produce and artisans",
		},
	},
	{
		keywords: []string{"sanctuary", "refuge"},
		descriptions: []string{
			"Protected sanctuary for wildlife viewing and quiet nature walks",
			"Nature refuge with trails and opportunities to spot local wildlife",
		},
	},
	{
		keywords: []string{"viewpoint", "lookout"},
		descriptions: []string{
			"Scenic lookout with sweeping views of the surrounding landscape",
			"Panoramic viewpoint popular for photos at sunrise and sunset",
		},
	},
}

// typeOrder is the precedence used when a place carries several types.
var typeOrder = []string{
	"science_museum",
	"planetarium",
	"museum",
	"art_gallery",
	"zoo",
	"aquarium",
	"amusement_park",
	"botanical_garden",
	"park",
	"restaurant",
	"cafe",
	"bar",
	"bakery",
	"shopping_mall",
	"movie_theater",
	"spa",
	"gym",
	"library",
	"church",
	"tourist_attraction",
	"point_of_interest",
	"establishment",
}

var typeDescriptions = map[string][]string{
	"science_museum": {
		"Hands-on science museum with interactive exhibits for all ages",
		"Interactive science centre exploring technology and the natural world",
	},
	"planetarium": {
		"Planetarium with immersive shows about stars, planets and space",
	},
	"museum": {
		"Museum with curated collections on local history and culture",
		"Cultural museum presenting exhibits on the region's heritage",
	},
	"art_gallery": {
		"Art gallery featuring rotating exhibitions from local and visiting artists",
	},
	"zoo": {
		"Zoo home to animals from around the world and educational programs",
	},
	"aquarium": {
		"Aquarium showcasing marine life through large viewing tanks",
	},
	"amusement_park": {
		"Amusement park with rides, games and family entertainment",
	},
	"botanical_garden": {
		"Botanical garden with themed plantings and peaceful walking paths",
	},
	"park": {
		"Green park with walking trails, picnic spots and open space",
		"Outdoor park ideal for a stroll, a picnic or a relaxed afternoon",
	},
	"restaurant": {
		"Restaurant serving local favourites in a welcoming setting",
		"Popular dining spot known for its regional dishes",
	},
	"cafe": {
		"Cozy cafe for coffee, pastries and a relaxed break",
	},
	"bar": {
		"Neighbourhood bar with drinks and a lively atmosphere",
	},
	"bakery": {
		"Bakery offering fresh bread, pastries and sweet treats",
	},
	"shopping_mall": {
		"Shopping centre with a wide range of stores and eateries",
	},
	"movie_theater": {
		"Cinema screening current releases in comfortable theatres",
	},
	"spa": {
		"Spa offering massages and treatments for a restful visit",
	},
	"gym": {
		"Fitness facility with equipment and classes for visitors",
	},
	"library": {
		"Public library with reading spaces and community programs",
	},
	"church": {
		"Historic place of worship notable for its architecture",
	},
	"tourist_attraction": {
		"Well-known local attraction worth a stop on any itinerary",
		"Popular sight drawing visitors for its unique character",
	},
}

const (
	describeTopRated = "Highly-rated local attraction offering an exceptional and memorable experience"
	describePopular  = "Popular destination featuring a quality experience and welcoming atmosphere"
	describeDefault  = "Local venue offering unique character and an authentic regional experience"
)

// DescribePlace generates a short description for a place from its name,
// its place types and its rating. The same inputs always give the same text.
func DescribePlace(name string, types []string, rating float64) string {
	lower := strings.ToLower(name)

	for _, rule := range nameRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return pick(rule.descriptions, name)
			}
		}
	}

	if t := PrimaryType(types); t != "" {
		if ds, ok := typeDescriptions[t]; ok {
			return pick(ds, name)
		}
	}

	switch {
	case rating >= 4.5:
		return describeTopRated
	case rating >= 4.0:
		return describePopular
	default:
		return describeDefault
	}
}

// PrimaryType returns the most specific known type of a place.
func PrimaryType(types []string) string {
	set := make(map[string]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}

	for _, t := range typeOrder {
		if _, ok := set[t]; ok {
			return t
		}
	}

	return ""
}

// Category is a human readable form of PrimaryType, e.g. "Art Gallery".
func Category(types []string) string {
	t := PrimaryType(types)
	if t == "" || t == "point_of_interest" || t == "establishment" {
		return ""
	}

	words := strings.Split(t, "_")
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}

	return strings.Join(words, " ")
}

func pick(options []string, seed string) string {
	if len(options) == 1 {
		return options[0]
	}

	h := fnv.New32a()
	h.Write([]byte(strings.ToLower(seed)))

	return options[int(h.Sum32()%uint32(len(options)))]
}
