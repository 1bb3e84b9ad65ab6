package carta

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var colorNames = []string{"aliceblue", "antiquewhite", "aqua", "aquamarine", "azure", "beige", "bisque", "black", "blanchedalmond", "blue", "blueviolet", "brown", "burlywood", "cadetblue", "chartreuse", "chocolate", "coral", "cornflowerblue", "cornsilk", "crimson", "cyan", "darkblue", "darkcyan", "darkgoldenrod", "darkgray", "darkgrey", "darkgreen", "darkkhaki", "darkmagenta", "darkolivegreen", "darkorange", "darkorchid", "darkred", "darksalmon", "darkseagreen", "darkslateblue", "darkslategray", "darkslategrey", "darkturquoise", "darkviolet", "deeppink", "deepskyblue", "dimgray", "dimgrey", "dodgerblue", "firebrick", "floralwhite", "forestgreen", "fuchsia", "gainsboro", "ghostwhite", "gold", "goldenrod", "gray", "grey", "green", "greenyellow", "honeydew", "hotpink", "indianred", "indigo", "ivory", "khaki", "lavender", "lavenderblush", "lawngreen", "lemonchiffon", "lightblue", "lightcoral", "lightcyan", "lightgoldenrodyellow", "lightgray", "lightgrey", "lightgreen", "lightpink", "lightsalmon", "lightseagreen", "lightskyblue", "lightslategray", "lightslategrey", "lightsteelblue", "lightyellow", "lime", "limegreen", "linen", "magenta", "maroon", "mediumaquamarine", "mediumblue", "mediumorchid", "mediumpurple", "mediumseagreen", "mediumslateblue", "mediumspringgreen", "mediumturquoise", "mediumvioletred", "midnightblue", "mintcream", "mistyrose", "moccasin", "navajowhite", "navy", "oldlace", "olive", "olivedrab", "orange", "orangered", "orchid", "palegoldenrod", "palegreen", "paleturquoise", "palevioletred", "papayawhip", "peachpuff", "peru", "pink", "plum", "powderblue", "purple", "red", "rosybrown", "royalblue", "saddlebrown", "salmon", "sandybrown", "seagreen", "seashell", "sienna", "silver", "skyblue", "slateblue", "slategray", "slategrey", "snow", "springgreen", "steelblue", "tan", "teal", "thistle", "tomato", "turquoise", "violet", "wheat", "white", "whitesmoke", "yellow", "yellowgreen"}

var (
	whitespace = regexp.MustCompile(`\s`)
	colorTuple = regexp.MustCompile(`^(hsla?|rgba?)\((.*)\)$`)
)

// TupleColorParam accepts rgb(), rgba(), hsl() and hsla() color strings.
type TupleColorParam struct{}

func (TupleColorParam) Description() string { return "an HTML color tuple" }

func (p TupleColorParam) Validate(value any) error {
	s, ok := value.(string)
	if !ok {
		return fmt.Errorf("%v is not %s", value, p.Description())
	}
	s = whitespace.ReplaceAllString(s, "")

	m := colorTuple.FindStringSubmatch(s)
	if m == nil {
		return fmt.Errorf("%s is not %s", s, p.Description())
	}
	fn, params := m[1], strings.Split(m[2], ",")

	var err error
	switch fn {
	case "rgb":
		err = validateRGB(params)
	case "rgba":
		err = validateRGBA(params)
	case "hsl":
		err = validateHSL(params)
	case "hsla":
		err = validateHSLA(params)
	}
	if err != nil {
		return fmt.Errorf("%s is not a valid %s color tuple: %w", s, strings.ToUpper(fn), err)
	}
	return nil
}

func assertLength(params []string, n int) error {
	if len(params) != n {
		return fmt.Errorf("expected %d parameters but got %d", n, len(params))
	}
	return nil
}

func assertPercentage(param string) error {
	if !strings.HasSuffix(param, "%") {
		return fmt.Errorf("%s is not a valid percentage", param)
	}
	f, err := strconv.ParseFloat(strings.TrimSuffix(param, "%"), 64)
	if err != nil || f < 0 || f > 100 {
		return fmt.Errorf("%s is not a valid percentage", param)
	}
	return nil
}

func assertBetween(param string, min, max float64) error {
	f, err := strconv.ParseFloat(param, 64)
	if err != nil || f < min || f > max {
		return fmt.Errorf("%s is not a number between %v and %v", param, min, max)
	}
	return nil
}

func validateRGB(params []string) error {
	if err := assertLength(params, 3); err != nil {
		return err
	}
	allPercent, allByte := true, true
	for _, p := range params {
		if assertPercentage(p) != nil {
			allPercent = false
		}
		if assertBetween(p, 0, 255) != nil {
			allByte = false
		}
	}
	if !allPercent && !allByte {
		return fmt.Errorf("parameters must either all be percentages or all be numbers between 0 and 255")
	}
	return nil
}

func validateRGBA(params []string) error {
	if err := assertLength(params, 4); err != nil {
		return err
	}
	if err := validateRGB(params[:3]); err != nil {
		return err
	}
	return assertBetween(params[3], 0, 1)
}

func validateHSL(params []string) error {
	if err := assertLength(params, 3); err != nil {
		return err
	}
	if err := assertBetween(params[0], 0, 360); err != nil {
		return err
	}
	if err := assertPercentage(params[1]); err != nil {
		return err
	}
	return assertPercentage(params[2])
}

func validateHSLA(params []string) error {
	if err := assertLength(params, 4); err != nil {
		return err
	}
	if err := validateHSL(params[:3]); err != nil {
		return err
	}
	return assertBetween(params[3], 0, 1)
}

// Color accepts any HTML color specification: one of the 147 named colors,
// a 3- or 6-digit hex triplet, or an RGB(A) or HSL(A) tuple.
func Color() Parameter {
	names := make([]any, len(colorNames))
	for i, n := range colorNames {
		names[i] = n
	}
	lower := func(v any) any {
		if s, ok := v.(string); ok {
			return strings.ToLower(s)
		}
		return v
	}
	return Union("an HTML color specification",
		OneOf(names...).WithNormalize(lower),
		String(`#[0-9a-f]{6}`, true),
		String(`#[0-9a-f]{3}`, true),
		TupleColorParam{},
	)
}
