// Package tools implements the local capabilities the voice relay can run on
// behalf of the upstream model. Execution is pure and never fails: every
// problem is reported inside the result payload, so callers forward results
// without exception handling.
package tools

import "encoding/json"

var registry = map[string]func(argumentsJSON string) string{
	"get_weather": getWeather,
}

// Execute runs the named tool with a JSON arguments string and returns a JSON
// result string. Unknown names yield an embedded error payload.
func Execute(name, argumentsJSON string) string {
	fn, ok := registry[name]
	if !ok {
		return errorResult("Unknown function: " + name)
	}
	return fn(argumentsJSON)
}

func errorResult(message string) string {
	out, _ := json.Marshal(map[string]string{"error": message})
	return string(out)
}

// WeatherToolDefinition is the realtime API tool schema clients register in
// their session.update frame so the model can call get_weather.
const WeatherToolDefinition = `{
  "type": "function",
  "name": "get_weather",
  "description": "Get the current weather for a specified city. Call this whenever the user asks about weather conditions in a specific location.",
  "parameters": {
    "type": "object",
    "properties": {
      "city": {
        "type": "string",
        "description": "The city name to get weather for (e.g., 'Seattle', 'New York', 'London')"
      },
      "unit": {
        "type": "string",
        "description": "Temperature unit: 'celsius' or 'fahrenheit'",
        "enum": ["celsius", "fahrenheit"]
      }
    },
    "required": ["city"]
  }
}`
