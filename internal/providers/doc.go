// Package providers implements Client for each supported LLM vendor.
//
// Supported vendors: Anthropic (Claude), OpenAI (GPT, through the go-openai
// SDK), Google (Gemini), and Ollama / LM Studio for local models.
//
// Every failure is reported as an *Error carrying an ErrorKind. Rate limits,
// timeouts, 5xx replies and network faults are transient and retried with
// exponential back-off under a RetryPolicy; everything else fails on the
// first attempt. Tests redirect the HTTP clients to httptest servers so no
// live API is contacted.
//
// Use [New] to obtain a Client by vendor name and model string.
package providers
