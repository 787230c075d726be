// Package mockTransport предоставляет тестовую реализацию transport.UserAgent.
//
// Тест сам генерирует события подключения и сессий:
//
//	f := mockTransport.NewFactory()
//	reg := registry.New(f.New)
//	...
//	f.Last().Connect()             // connecting, connected, registered
//	f.Last().LastSession().Confirm()
//
// События доставляются синхронно, поэтому после вызова Emit* состояние
// подписчиков уже обновлено.
package mockTransport
