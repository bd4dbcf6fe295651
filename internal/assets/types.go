package assets

// Schema is a top-level grouping of object types.
type Schema struct {
	ID          int    `json:"id,string"`
	Name        string `json:"name"`
	ObjectCount int    `json:"objectCount"`
}

// ObjectType is a kind of object within a schema.
type ObjectType struct {
	ID   int    `json:"id,string"`
	Name string `json:"name"`
}

// Attribute describes one field of an object type.
type Attribute struct {
	ID   int    `json:"id,string"`
	Name string `json:"name"`
}

// Object is one asset record. Attribute values are keyed by attribute id,
// not name; resolve names through the attribute map first.
type Object struct {
	ID         int               `json:"id,string"`
	ObjectKey  string            `json:"objectKey"`
	Label      string            `json:"label"`
	ObjectType ObjectType        `json:"objectType"`
	Attributes []ObjectAttribute `json:"attributes"`
}

// ObjectAttribute carries the values of one attribute on one object.
type ObjectAttribute struct {
	ObjectTypeAttributeID int              `json:"objectTypeAttributeId,string"`
	Values                []AttributeValue `json:"objectAttributeValues"`
}

// AttributeValue is one stored value. DisplayValue is the human-readable
// rendering the service produces for reference attributes (user names,
// status labels); Value is the raw stored form.
type AttributeValue struct {
	Value        string `json:"value"`
	DisplayValue string `json:"displayValue"`
	SearchValue  string `json:"searchValue,omitempty"`
}

// AttributeUpdate is the write payload for one attribute.
type AttributeUpdate struct {
	ObjectTypeAttributeID int                     `json:"objectTypeAttributeId"`
	Values                []AttributeValuePayload `json:"objectAttributeValues"`
}

// AttributeValuePayload is one value in a write payload.
type AttributeValuePayload struct {
	Value string `json:"value"`
}

// BuildAttributeUpdate assembles a write payload for attributeID.
func BuildAttributeUpdate(attributeID int, values ...string) AttributeUpdate {
	payload := make([]AttributeValuePayload, 0, len(values))
	for _, v := range values {
		payload = append(payload, AttributeValuePayload{Value: v})
	}
	return AttributeUpdate{
		ObjectTypeAttributeID: attributeID,
		Values:                payload,
	}
}

// ExtractValue returns the first value of attributeID on obj, preferring
// the display form. Returns "" when the attribute is absent or empty.
func ExtractValue(obj *Object, attributeID int) string {
	values := ExtractValues(obj, attributeID)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

// ExtractValues returns every value of attributeID on obj, preferring the
// display form of each.
func ExtractValues(obj *Object, attributeID int) []string {
	if obj == nil {
		return nil
	}
	for _, attr := range obj.Attributes {
		if attr.ObjectTypeAttributeID != attributeID {
			continue
		}
		out := make([]string, 0, len(attr.Values))
		for _, v := range attr.Values {
			if v.DisplayValue != "" {
				out = append(out, v.DisplayValue)
			} else {
				out = append(out, v.Value)
			}
		}
		return out
	}
	return nil
}

// HasAttribute reports whether obj carries any value for attributeID.
func HasAttribute(obj *Object, attributeID int) bool {
	return ExtractValue(obj, attributeID) != ""
}
