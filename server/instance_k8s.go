package server

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	autoscaling "k8s.io/api/autoscaling/v1"
	meta "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
)

// KubernetesInstanceProvider runs the backend as a StatefulSet scaled between zero and one replica
type KubernetesInstanceProvider struct {
	clientset        kubernetes.Interface
	defaultNamespace string
}

func NewKubernetesInstanceProviderInCluster(namespace string) (*KubernetesInstanceProvider, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		return nil, errors.Wrap(err, "Unable to load in-cluster config")
	}

	return newKubernetesInstanceProviderWithLoadedConfig(config, namespace)
}

func NewKubernetesInstanceProviderWithConfig(kubeConfigFile string, namespace string) (*KubernetesInstanceProvider, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeConfigFile)
	if err != nil {
		return nil, errors.Wrap(err, "Could not load kube config file")
	}

	return newKubernetesInstanceProviderWithLoadedConfig(config, namespace)
}

func newKubernetesInstanceProviderWithLoadedConfig(config *rest.Config, namespace string) (*KubernetesInstanceProvider, error) {
	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		return nil, errors.Wrap(err, "Could not create kube clientset")
	}

	return NewKubernetesInstanceProviderWithClientset(clientset, namespace), nil
}

func NewKubernetesInstanceProviderWithClientset(clientset kubernetes.Interface, namespace string) *KubernetesInstanceProvider {
	if namespace == "" {
		namespace = meta.NamespaceDefault
	}
	return &KubernetesInstanceProvider{
		clientset:        clientset,
		defaultNamespace: namespace,
	}
}

func (k *KubernetesInstanceProvider) Start(ctx context.Context, instanceID string) error {
	return k.scale(ctx, instanceID, 0, 1)
}

func (k *KubernetesInstanceProvider) Stop(ctx context.Context, instanceID string) error {
	return k.scale(ctx, instanceID, 1, 0)
}

// splitInstanceID accepts "namespace/statefulset" or a bare StatefulSet name
func (k *KubernetesInstanceProvider) splitInstanceID(instanceID string) (string, string) {
	if namespace, name, found := strings.Cut(instanceID, "/"); found {
		return namespace, name
	}
	return k.defaultNamespace, instanceID
}

func (k *KubernetesInstanceProvider) scale(ctx context.Context, instanceID string, from int32, to int32) error {
	namespace, statefulSetName := k.splitInstanceID(instanceID)
	if statefulSetName == "" {
		return errors.New("missing StatefulSet name")
	}
	statefulSets := k.clientset.AppsV1().StatefulSets(namespace)

	scale, err := statefulSets.GetScale(ctx, statefulSetName, meta.GetOptions{})
	if err != nil {
		return errors.Wrapf(err, "GetScale failed for StatefulSet %s/%s", namespace, statefulSetName)
	}

	replicas := scale.Spec.Replicas
	logrus.WithFields(logrus.Fields{
		"namespace":   namespace,
		"statefulSet": statefulSetName,
		"replicas":    replicas,
	}).Debug("StatefulSet replicas")
	if replicas != from {
		return nil
	}

	_, err = statefulSets.UpdateScale(ctx, statefulSetName, &autoscaling.Scale{
		ObjectMeta: meta.ObjectMeta{
			Name:            scale.Name,
			Namespace:       scale.Namespace,
			UID:             scale.UID,
			ResourceVersion: scale.ResourceVersion,
		},
		Spec: autoscaling.ScaleSpec{Replicas: to},
	}, meta.UpdateOptions{})
	if err != nil {
		return errors.Wrapf(err, "UpdateScale to %d failed for StatefulSet %s/%s", to, namespace, statefulSetName)
	}

	logrus.WithFields(logrus.Fields{
		"namespace":   namespace,
		"statefulSet": statefulSetName,
		"from":        from,
		"to":          to,
	}).Info("Scaled StatefulSet")
	return nil
}
