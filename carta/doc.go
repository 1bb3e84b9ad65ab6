// Package carta drives a CARTA frontend session from Go.
//
// Every method is a remote call: the client sends an action to the CARTA
// backend's gRPC scripting service, the backend relays it to the frontend
// session, and the frontend's reply is returned. Sessions and images hold no
// frontend state, so they may refer to sessions or images that no longer
// exist. Callers should be prepared for ErrActionFailed on any call.
//
// Connecting to an existing frontend session:
//
//	sess, err := carta.Connect("localhost", 50051, 1234, carta.WithLogger(logger))
//	if err != nil {
//		return err
//	}
//	defer sess.Close()
//
//	img, err := sess.OpenImage(ctx, "data/m51.fits", "")
//	if err != nil {
//		return err
//	}
//	if err := img.SetColormap(ctx, carta.ColormapViridis, false); err != nil {
//		return err
//	}
//
// Actions without a dedicated method can be called directly with
// Session.Call, Session.CallAction and Session.GetValue.
package carta
