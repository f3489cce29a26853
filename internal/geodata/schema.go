package geodata

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/xeipuuv/gojsonschema"
)

const citySchema = `{
  "type": "object",
  "required": ["type", "features"],
  "properties": {
    "type": {"enum": ["FeatureCollection"]},
    "features": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["geometry", "properties"],
        "properties": {
          "geometry": {
            "type": "object",
            "required": ["type", "coordinates"],
            "properties": {"type": {"enum": ["Point"]}}
          },
          "properties": {
            "type": "object",
            "required": ["name"],
            "properties": {
              "name": {"type": "string", "minLength": 1},
              "country": {"type": "string"},
              "population": {"type": ["number", "string"]}
            }
          }
        }
      }
    }
  }
}`

const countrySchema = `{
  "type": "object",
  "required": ["type", "features"],
  "properties": {
    "type": {"enum": ["FeatureCollection"]},
    "features": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["geometry"],
        "properties": {
          "geometry": {
            "type": "object",
            "required": ["type", "coordinates"],
            "properties": {"type": {"enum": ["Polygon", "MultiPolygon"]}}
          }
        }
      }
    }
  }
}`

var (
	citySchemaLoader    = gojsonschema.NewStringLoader(citySchema)
	countrySchemaLoader = gojsonschema.NewStringLoader(countrySchema)
)

// ValidateCities checks a city GeoJSON document against the city schema.
func ValidateCities(doc []byte) error {
	return validate(citySchemaLoader, doc, "cities")
}

// ValidateCountries checks a country GeoJSON document against the boundary schema.
func ValidateCountries(doc []byte) error {
	return validate(countrySchemaLoader, doc, "countries")
}

func validate(schema gojsonschema.JSONLoader, doc []byte, kind string) error {
	result, err := gojsonschema.Validate(schema, gojsonschema.NewBytesLoader(doc))
	if err != nil {
		return eris.Wrapf(err, "geodata: validate %s", kind)
	}
	if result.Valid() {
		return nil
	}
	msgs := make([]string, 0, len(result.Errors()))
	for _, e := range result.Errors() {
		msgs = append(msgs, e.String())
	}
	return eris.Errorf("geodata: invalid %s document: %s", kind, strings.Join(msgs, "; "))
}
