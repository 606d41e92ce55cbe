// Package extauthz exposes the decision pipeline over the envoy ext_authz v3 gRPC
// protocol.
//
// The Response Translator (Translate, AllowResponse, DenyResponse) is the only code
// that knows the wire shape of a decision. Server adapts CheckRequests into attribute
// contexts, invokes the pipeline, and owns transport concerns: precondition errors
// become InvalidArgument, evaluator failures become Internal, and policy denials are
// ordinary responses.
package extauthz
