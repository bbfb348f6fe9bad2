package socketio

import "testing"

func TestNamespaceMiddlewareChain(t *testing.T) {
	ns := newNamespace("/", nil)

	var order []string
	ns.Use(func(sock *Socket, next func(error)) {
		order = append(order, "first")
		next(nil)
	})
	ns.Use(func(sock *Socket, next func(error)) {
		order = append(order, "second")
		next(nil)
	})

	var connected *Socket
	ns.OnConnect(func(sock *Socket) {
		connected = sock
	})

	sock := newSocket("s1", ns, nil)
	var resultErr error
	ns.runMiddleware(sock, func(err error) { resultErr = err })

	if resultErr != nil {
		t.Fatalf("expected nil error, got %v", resultErr)
	}
	if len(order) != 2 || order[0] != "first" || order[1] != "second" {
		t.Fatalf("expected middleware to run in order, got %v", order)
	}
	if connected != sock {
		t.Fatal("expected OnConnect to run with the connecting socket")
	}
}

func TestNamespaceMiddlewareRejection(t *testing.T) {
	ns := newNamespace("/", nil)

	ns.Use(func(sock *Socket, next func(error)) {
		next(&ConnectError{Message: "unauthorized"})
	})

	connectCalled := false
	ns.OnConnect(func(sock *Socket) { connectCalled = true })

	sock := newSocket("s1", ns, nil)
	var resultErr error
	ns.runMiddleware(sock, func(err error) { resultErr = err })

	if resultErr == nil {
		t.Fatal("expected middleware rejection to surface an error")
	}
	if connectCalled {
		t.Fatal("OnConnect must not run when middleware rejects")
	}
}

func TestNamespaceAddRemoveSocket(t *testing.T) {
	ns := newNamespace("/", nil)

	var seen *Socket
	ns.EventEmitter.On("connection", func(args ...any) {
		seen = args[0].(*Socket)
	})

	sock := newSocket("s1", ns, nil)
	ns.addSocket(sock)

	if seen != sock {
		t.Fatal("expected connection event to fire with the added socket")
	}
	if len(ns.Sockets()) != 1 {
		t.Fatalf("expected 1 socket, got %d", len(ns.Sockets()))
	}

	ns.removeSocket(sock.id)
	if len(ns.Sockets()) != 0 {
		t.Fatalf("expected 0 sockets after removal, got %d", len(ns.Sockets()))
	}
}
