// ABOUTME: Session package driving an asynchronous codec
// ABOUTME: State-gated control facade plus producer and consumer workers
// Package session drives one codec instance through its lifecycle.
//
// A Session binds a codec callback that forwards every buffer announcement
// into an exchange.Signal. A producer worker fills input slots from a Source
// and a consumer worker hands output slots to a Sink. Control operations are
// accepted only in the states listed on each method; anything else returns
// codec.ErrInvalidState and leaves both the session and the codec untouched.
//
//	s, err := session.NewByName(codec.NameOpusDecoder, session.Config{Source: src, Sink: dst})
//	_ = s.Configure(format)
//	_ = s.Prepare()
//	_ = s.Start()
//	err = s.Wait(ctx)
//	_ = s.Stop()
//	_ = s.Release()
package session
