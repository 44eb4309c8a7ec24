package visionapi

import (
	"strings"

	"reticle/internal/detection"
)

// categoryByName maps Cloud Vision object names onto the coarse categories
// the classification filter understands.
var categoryByName = map[string]detection.Category{
	"bag":         detection.CategoryFashionGood,
	"belt":        detection.CategoryFashionGood,
	"boot":        detection.CategoryFashionGood,
	"clothing":    detection.CategoryFashionGood,
	"dress":       detection.CategoryFashionGood,
	"footwear":    detection.CategoryFashionGood,
	"handbag":     detection.CategoryFashionGood,
	"hat":         detection.CategoryFashionGood,
	"jacket":      detection.CategoryFashionGood,
	"jeans":       detection.CategoryFashionGood,
	"outerwear":   detection.CategoryFashionGood,
	"shirt":       detection.CategoryFashionGood,
	"shoe":        detection.CategoryFashionGood,
	"sunglasses":  detection.CategoryFashionGood,
	"top":         detection.CategoryFashionGood,
	"watch":       detection.CategoryFashionGood,
	"apple":       detection.CategoryFood,
	"baked goods": detection.CategoryFood,
	"banana":      detection.CategoryFood,
	"bread":       detection.CategoryFood,
	"cheese":      detection.CategoryFood,
	"food":        detection.CategoryFood,
	"fruit":       detection.CategoryFood,
	"orange":      detection.CategoryFood,
	"pizza":       detection.CategoryFood,
	"vegetable":   detection.CategoryFood,
	"building":    detection.CategoryPlace,
	"bridge":      detection.CategoryPlace,
	"house":       detection.CategoryPlace,
	"skyscraper":  detection.CategoryPlace,
	"tower":       detection.CategoryPlace,
	"flower":      detection.CategoryPlant,
	"houseplant":  detection.CategoryPlant,
	"plant":       detection.CategoryPlant,
	"tree":        detection.CategoryPlant,
	"bed":         detection.CategoryHomeGood,
	"bottle":      detection.CategoryHomeGood,
	"bowl":        detection.CategoryHomeGood,
	"chair":       detection.CategoryHomeGood,
	"coffee cup":  detection.CategoryHomeGood,
	"couch":       detection.CategoryHomeGood,
	"cup":         detection.CategoryHomeGood,
	"furniture":   detection.CategoryHomeGood,
	"kitchenware": detection.CategoryHomeGood,
	"lamp":        detection.CategoryHomeGood,
	"mug":         detection.CategoryHomeGood,
	"pillow":      detection.CategoryHomeGood,
	"plate":       detection.CategoryHomeGood,
	"table":       detection.CategoryHomeGood,
	"tableware":   detection.CategoryHomeGood,
	"vase":        detection.CategoryHomeGood,
}

func categorize(name string) detection.Category {
	if c, ok := categoryByName[strings.ToLower(strings.TrimSpace(name))]; ok {
		return c
	}
	return detection.CategoryUnknown
}
