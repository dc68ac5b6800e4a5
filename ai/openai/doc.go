// Package openai backs the ai services with any server that speaks the
// OpenAI REST dialect: OpenAI itself, Ollama, LocalAI or vLLM.
//
// Embeddings go through langchaingo's embeddings package. Reranking,
// entailment and clause proposal share one chat client in JSON mode; a
// reply that does not parse is repaired when the damage is small and
// otherwise re-requested, up to Config.MaxAttempts times, before the call
// fails with ai.ErrMalformedResponse.
//
//	config := ai.NewConfig(
//	    ai.WithHost("http://localhost:11434"),
//	    ai.WithChatModel("qwen2.5:7b"),
//	)
//	provider, err := openai.NewProvider(config)
//	if err != nil {
//	    return err
//	}
//	defer provider.Close()
//
//	verdicts, err := provider.EntailmentJudge().Judge(ctx, claim, passages)
package openai
